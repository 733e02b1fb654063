package bot

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
)

const (
	replyError              = "Something went wrong on our end. Please write \"menu\" to start over."
	replyNotUnderstood      = "Sorry, I didn't understand that."
	replyPickNumber         = "Please reply with one of the numbers shown."
	replyPickServices       = "Please reply with the service numbers, separated by commas (for example: 1,3)."
	replyYesOrNo            = "Please reply yes or no."
	replyAskName            = "What name should the appointment be under?"
	replyGoodbye            = "Thanks for getting in touch. Write \"menu\" whenever you need us."
	replyOperationCancelled = "Operation cancelled."
	replyNoStaff            = "Nobody is taking bookings right now. Please try again later."
	replyStaffGone          = "That person is no longer taking bookings."
	replyNoDays             = "There are no open days in the coming week."
	replyNoSlots            = "No open times left on that day."
	replyNoServices         = "There are no services available for that selection."
	replyNoAppointments     = "You have no upcoming appointments."
	replyBookingFailed      = "We couldn't save your appointment. Please try again in a few minutes."
	replyBookingGone        = "That appointment is no longer on file."
	replyCancelFailed       = "We couldn't cancel that appointment. Please try again in a few minutes."
	replyCancelled          = "Your appointment has been cancelled."
	replyKept               = "No problem, your appointment is unchanged."
	replyRemindersOff       = "Appointment reminders are now off. Write \"reminders on\" to turn them back on."
	replyRemindersOn        = "Appointment reminders are now on."
)

func menuText(t *tenant.Tenant) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Welcome to %s! How can we help?\n", t.Name)
	b.WriteString("1. Book an appointment\n")
	b.WriteString("2. My appointments\n")
	b.WriteString("3. Cancel an appointment\n")
	b.WriteString("4. Services and prices\n")
	b.WriteString("5. Where to find us\n")
	b.WriteString("0. Exit")
	return b.String()
}

func staffListText(active, inactive []tenant.StaffMember) string {
	var b strings.Builder
	b.WriteString("Who would you like to book with?\n")
	for i, s := range active {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Name)
	}
	if len(inactive) > 0 {
		names := make([]string, len(inactive))
		for i, s := range inactive {
			names[i] = s.Name
		}
		fmt.Fprintf(&b, "Currently unavailable: %s.\n", strings.Join(names, ", "))
	}
	b.WriteString("Reply with a number.")
	return b.String()
}

func dayListText(days []time.Time) string {
	var b strings.Builder
	b.WriteString("Which day works for you?\n")
	for i, d := range days {
		fmt.Fprintf(&b, "%d. %s\n", i+1, d.Format("Monday 2 January"))
	}
	b.WriteString("Reply with a number.")
	return b.String()
}

func slotListText(day time.Time, slots []time.Time) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Open times for %s:\n", day.Format("Monday 2 January"))
	for i, s := range slots {
		fmt.Fprintf(&b, "%d. %s\n", i+1, s.Format("15:04"))
	}
	b.WriteString("Reply with a number.")
	return b.String()
}

func serviceListText(services []tenant.Service) string {
	var b strings.Builder
	b.WriteString("Which services would you like?\n")
	for i, svc := range services {
		fmt.Fprintf(&b, "%d. %s — $%d (%d min)\n", i+1, svc.Name, svc.Price, svc.DurationMinutes)
	}
	b.WriteString("Reply with the numbers, separated by commas.")
	return b.String()
}

func servicesText(t *tenant.Tenant) string {
	if len(t.Services) == 0 {
		return replyNoServices
	}
	var b strings.Builder
	b.WriteString("Our services:\n")
	for _, svc := range t.Services {
		fmt.Fprintf(&b, "- %s: $%d (%d min)\n", svc.Name, svc.Price, svc.DurationMinutes)
	}
	return strings.TrimRight(b.String(), "\n")
}

var weekdayOrder = []time.Weekday{
	time.Monday, time.Tuesday, time.Wednesday, time.Thursday,
	time.Friday, time.Saturday, time.Sunday,
}

func locationText(t *tenant.Tenant) string {
	var b strings.Builder
	if t.Address != "" {
		fmt.Fprintf(&b, "You can find %s at %s.\n", t.Name, t.Address)
	} else {
		fmt.Fprintf(&b, "%s\n", t.Name)
	}
	b.WriteString("Opening hours:\n")
	for _, day := range weekdayOrder {
		ranges := t.Hours[day]
		if len(ranges) == 0 {
			continue
		}
		parts := make([]string, len(ranges))
		for i, r := range ranges {
			parts[i] = r.String()
		}
		fmt.Fprintf(&b, "%s: %s\n", day, strings.Join(parts, ", "))
	}
	return strings.TrimRight(b.String(), "\n")
}

func bookingLine(t *tenant.Tenant, bk store.Booking) string {
	when := bk.StartsAt.In(t.Location()).Format("Monday 2 January 15:04")
	line := fmt.Sprintf("%s — %s", when, strings.Join(bk.Services, " + "))
	if staff := t.StaffByID(bk.StaffID); staff != nil {
		line += " with " + staff.Name
	}
	return line
}

func appointmentListText(t *tenant.Tenant, bookings []store.Booking) string {
	var b strings.Builder
	b.WriteString("Your upcoming appointments:\n")
	for _, bk := range bookings {
		fmt.Fprintf(&b, "- %s\n", bookingLine(t, bk))
	}
	return strings.TrimRight(b.String(), "\n")
}

func cancelListText(t *tenant.Tenant, bookings []store.Booking) string {
	var b strings.Builder
	b.WriteString("Which appointment would you like to cancel?\n")
	for i, bk := range bookings {
		fmt.Fprintf(&b, "%d. %s\n", i+1, bookingLine(t, bk))
	}
	b.WriteString("Reply with a number.")
	return b.String()
}

func cancelConfirmText(t *tenant.Tenant, bk *store.Booking) string {
	return fmt.Sprintf("Cancel %s? Reply yes or no.", bookingLine(t, *bk))
}

func confirmationText(t *tenant.Tenant, staff *tenant.StaffMember, bk *store.Booking) string {
	var b strings.Builder
	fmt.Fprintf(&b, "All set, %s! Your appointment is confirmed.\n", bk.CustomerName)
	fmt.Fprintf(&b, "When: %s\n", bk.StartsAt.In(t.Location()).Format("Monday 2 January at 15:04"))
	if staff != nil {
		fmt.Fprintf(&b, "With: %s\n", staff.Name)
	}
	fmt.Fprintf(&b, "Services: %s\n", strings.Join(bk.Services, " + "))
	fmt.Fprintf(&b, "Total: $%d (%d min)\n", bk.TotalPrice, int(bk.TotalDuration.Minutes()))
	b.WriteString("We'll send you a reminder before your visit. See you soon!")
	return b.String()
}

func shortfallText(short time.Duration) string {
	return fmt.Sprintf(
		"Those services need %d more minutes than we have before closing at that time. Please pick an earlier slot.",
		int(short.Minutes()),
	)
}

func newBookingNotice(bk *store.Booking, t *tenant.Tenant) string {
	return fmt.Sprintf("New booking: %s — %s on %s.",
		bk.CustomerName,
		strings.Join(bk.Services, " + "),
		bk.StartsAt.In(t.Location()).Format("Monday 2 January at 15:04"),
	)
}

func cancelledBookingNotice(bk *store.Booking, t *tenant.Tenant) string {
	return fmt.Sprintf("Cancelled: %s — %s on %s.",
		bk.CustomerName,
		strings.Join(bk.Services, " + "),
		bk.StartsAt.In(t.Location()).Format("Monday 2 January at 15:04"),
	)
}

// titleCase capitalizes the first letter of each word, for customer names
// typed in all lower or upper case.
func titleCase(s string) string {
	words := strings.Fields(s)
	for i, w := range words {
		runes := []rune(strings.ToLower(w))
		runes[0] = unicode.ToUpper(runes[0])
		words[i] = string(runes)
	}
	return strings.Join(words, " ")
}
