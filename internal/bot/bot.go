// Package bot drives the WhatsApp booking conversation. Each inbound message
// advances a per-user session through a fixed set of steps; invalid input
// re-prompts without advancing, and a handful of global keywords work from
// any step.
package bot

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/nvarela/turnero/internal/availability"
	"github.com/nvarela/turnero/internal/booking"
	"github.com/nvarela/turnero/internal/messaging"
	"github.com/nvarela/turnero/internal/session"
	"github.com/nvarela/turnero/internal/store"
	"github.com/nvarela/turnero/internal/tenant"
)

// Conversation steps. The step set is closed; anything else in a stored
// session is treated as corrupt and reset to the menu.
const (
	stepMenu              = "menu"
	stepSelectingStaff    = "selecting_staff"
	stepSelectingDay      = "selecting_day"
	stepSelectingSlot     = "selecting_slot"
	stepEnteringName      = "entering_name"
	stepSelectingServices = "selecting_services"
	stepCancelSelect      = "cancel_select_booking"
	stepCancelConfirm     = "cancel_confirm"
	stepFinished          = "finished"
)

const dayKeyFormat = "2006-01-02"

// Config tunes the conversation flow.
type Config struct {
	SlotGranularity time.Duration
	LookaheadDays   int
	MenuKeywords    []string
	CancelKeywords  []string
}

// Bot handles one inbound message at a time. It is safe for concurrent use
// across users; per-user ordering is the transport's concern.
type Bot struct {
	sessions    session.Store
	engine      *availability.Engine
	committer   *booking.Committer
	canceller   *booking.Canceller
	bookings    store.BookingStore
	messenger   messaging.Messenger
	clock       availability.Clock
	granularity time.Duration
	lookahead   int
	menuWords   map[string]struct{}
	cancelWords map[string]struct{}
}

// New wires a bot. messenger may be nil; staff notifications are then
// skipped. A nil clock means the wall clock.
func New(sessions session.Store, engine *availability.Engine, committer *booking.Committer, canceller *booking.Canceller, bookings store.BookingStore, messenger messaging.Messenger, clock availability.Clock, cfg Config) *Bot {
	if clock == nil {
		clock = realClock{}
	}
	if cfg.SlotGranularity <= 0 {
		cfg.SlotGranularity = 30 * time.Minute
	}
	if cfg.LookaheadDays <= 0 {
		cfg.LookaheadDays = 7
	}
	menuWords := keywordSet(cfg.MenuKeywords, "menu", "hello", "hi", "hola", "start")
	cancelWords := keywordSet(cfg.CancelKeywords, "cancel")
	return &Bot{
		sessions:    sessions,
		engine:      engine,
		committer:   committer,
		canceller:   canceller,
		bookings:    bookings,
		messenger:   messenger,
		clock:       clock,
		granularity: cfg.SlotGranularity,
		lookahead:   cfg.LookaheadDays,
		menuWords:   menuWords,
		cancelWords: cancelWords,
	}
}

func keywordSet(words []string, defaults ...string) map[string]struct{} {
	if len(words) == 0 {
		words = defaults
	}
	set := make(map[string]struct{}, len(words))
	for _, w := range words {
		set[strings.ToLower(strings.TrimSpace(w))] = struct{}{}
	}
	return set
}

type realClock struct{}

func (realClock) Now() time.Time { return time.Now() }

// Handle processes one inbound message and returns the reply text. It never
// panics outward; a handler panic is logged and answered with a retry
// message, leaving the session untouched.
func (b *Bot) Handle(ctx context.Context, t *tenant.Tenant, contact, body string) (reply string) {
	defer func() {
		if r := recover(); r != nil {
			log.Ctx(ctx).Error().
				Interface("panic", r).
				Str("tenant_id", t.ID).
				Msg("conversation handler panicked")
			reply = b.failToMenu(ctx, t, contact)
		}
	}()

	input := strings.TrimSpace(body)
	lowered := strings.ToLower(input)

	// Global keywords work from any step.
	switch lowered {
	case "reminders off":
		if err := b.sessions.SetRemindersDisabled(ctx, t.ID, contact, true); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to store reminder preference")
			return replyError
		}
		return replyRemindersOff
	case "reminders on":
		if err := b.sessions.SetRemindersDisabled(ctx, t.ID, contact, false); err != nil {
			log.Ctx(ctx).Error().Err(err).Msg("failed to store reminder preference")
			return replyError
		}
		return replyRemindersOn
	}
	if _, isMenu := b.menuWords[lowered]; isMenu {
		return b.toMenu(ctx, t, contact)
	}
	if _, isCancel := b.cancelWords[lowered]; isCancel {
		// Abort whatever was in flight; cancelling a booking is menu option 3.
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyOperationCancelled+"\n\n"+menuText(t))
	}

	sess, err := b.sessions.Get(ctx, t.ID, contact)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to load session")
		return b.failToMenu(ctx, t, contact)
	}
	if sess == nil {
		// New or expired conversation.
		return b.toMenu(ctx, t, contact)
	}

	switch sess.Step {
	case stepMenu:
		return b.handleMenu(ctx, t, contact, sess, lowered)
	case stepSelectingStaff:
		return b.handleSelectingStaff(ctx, t, contact, sess, input)
	case stepSelectingDay:
		return b.handleSelectingDay(ctx, t, contact, sess, input)
	case stepSelectingSlot:
		return b.handleSelectingSlot(ctx, t, contact, sess, input)
	case stepEnteringName:
		return b.handleEnteringName(ctx, t, contact, sess, input)
	case stepSelectingServices:
		return b.handleSelectingServices(ctx, t, contact, sess, input)
	case stepCancelSelect:
		return b.handleCancelSelect(ctx, t, contact, sess, input)
	case stepCancelConfirm:
		return b.handleCancelConfirm(ctx, t, contact, sess, lowered)
	case stepFinished:
		return b.toMenu(ctx, t, contact)
	default:
		log.Ctx(ctx).Warn().
			Str("step", sess.Step).
			Str("tenant_id", t.ID).
			Msg("session at unknown step, resetting")
		return b.toMenu(ctx, t, contact)
	}
}

// toMenu resets the session to a fresh menu.
func (b *Bot) toMenu(ctx context.Context, t *tenant.Tenant, contact string) string {
	if err := b.sessions.Put(ctx, t.ID, contact, &session.Session{Step: stepMenu}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to save session")
		return replyError
	}
	return menuText(t)
}

// failToMenu answers a collaborator failure: the session is reset best-effort
// so the next message starts clean instead of re-hitting the failing step.
func (b *Bot) failToMenu(ctx context.Context, t *tenant.Tenant, contact string) string {
	if err := b.sessions.Put(ctx, t.ID, contact, &session.Session{Step: stepMenu}); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to reset session")
	}
	return replyError
}

func (b *Bot) save(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, reply string) string {
	if err := b.sessions.Put(ctx, t.ID, contact, sess); err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to save session")
		return replyError
	}
	return reply
}

func (b *Bot) handleMenu(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	switch input {
	case "1":
		return b.startBooking(ctx, t, contact, sess)
	case "2":
		return b.listAppointments(ctx, t, contact)
	case "3":
		return b.startCancellation(ctx, t, contact, sess)
	case "4":
		return servicesText(t)
	case "5":
		return locationText(t)
	case "0":
		return b.save(ctx, t, contact, &session.Session{Step: stepFinished}, replyGoodbye)
	default:
		return replyNotUnderstood + "\n\n" + menuText(t)
	}
}

// startBooking enters the booking flow: staff selection when the tenant has
// a roster, otherwise straight to day selection against the default hours.
func (b *Bot) startBooking(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session) string {
	*sess = session.Session{}
	active := t.ActiveStaff()
	if len(t.Staff) == 0 {
		return b.offerDays(ctx, t, contact, sess, nil)
	}
	if len(active) == 0 {
		sess.Step = stepMenu
		return b.save(ctx, t, contact, sess, replyNoStaff+"\n\n"+menuText(t))
	}

	sess.Step = stepSelectingStaff
	sess.StaffOptions = make([]string, len(active))
	for i, s := range active {
		sess.StaffOptions[i] = s.ID
	}
	return b.save(ctx, t, contact, sess, staffListText(active, t.InactiveStaff()))
}

func (b *Bot) handleSelectingStaff(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	idx, ok := parseIndex(input, len(sess.StaffOptions))
	if !ok {
		return replyPickNumber
	}
	staff := t.StaffByID(sess.StaffOptions[idx])
	if staff == nil || !staff.Active {
		// Roster changed between listing and selection.
		return replyStaffGone + "\n\n" + b.startBooking(ctx, t, contact, sess)
	}
	sess.StaffID = staff.ID
	return b.offerDays(ctx, t, contact, sess, staff)
}

func (b *Bot) offerDays(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, staff *tenant.StaffMember) string {
	days := b.engine.UpcomingDays(t, staff, b.lookahead)
	if len(days) == 0 {
		sess.Step = stepMenu
		return b.save(ctx, t, contact, sess, replyNoDays+"\n\n"+menuText(t))
	}
	sess.Step = stepSelectingDay
	sess.DayOptions = make([]string, len(days))
	for i, d := range days {
		sess.DayOptions[i] = d.Format(dayKeyFormat)
	}
	return b.save(ctx, t, contact, sess, dayListText(days))
}

func (b *Bot) handleSelectingDay(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	idx, ok := parseIndex(input, len(sess.DayOptions))
	if !ok {
		return replyPickNumber
	}
	day, err := time.ParseInLocation(dayKeyFormat, sess.DayOptions[idx], t.Location())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("day", sess.DayOptions[idx]).Msg("corrupt day option in session")
		return b.toMenu(ctx, t, contact)
	}
	staff := t.StaffByID(sess.StaffID)

	slots, err := b.engine.FreeSlots(ctx, t, staff, day, b.granularity)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to compute free slots")
		return b.failToMenu(ctx, t, contact)
	}
	if len(slots) == 0 {
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyNoSlots+"\n\n"+menuText(t))
	}

	sess.Day = sess.DayOptions[idx]
	sess.Step = stepSelectingSlot
	sess.SlotOptions = make([]string, len(slots))
	for i, s := range slots {
		sess.SlotOptions[i] = s.Format(time.RFC3339)
	}
	return b.save(ctx, t, contact, sess, slotListText(day, slots))
}

func (b *Bot) handleSelectingSlot(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	idx, ok := parseIndex(input, len(sess.SlotOptions))
	if !ok {
		return replyPickNumber
	}
	sess.Slot = sess.SlotOptions[idx]
	sess.Step = stepEnteringName
	return b.save(ctx, t, contact, sess, replyAskName)
}

func (b *Bot) handleEnteringName(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	if input == "" {
		return replyAskName
	}
	sess.CustomerName = titleCase(input)

	staff := t.StaffByID(sess.StaffID)
	offered := offeredServices(t, staff)
	if len(offered) == 0 {
		sess.Step = stepMenu
		return b.save(ctx, t, contact, sess, replyNoServices+"\n\n"+menuText(t))
	}
	sess.Step = stepSelectingServices
	sess.ServiceOptions = make([]string, len(offered))
	for i, svc := range offered {
		sess.ServiceOptions[i] = svc.Name
	}
	return b.save(ctx, t, contact, sess, serviceListText(offered))
}

func (b *Bot) handleSelectingServices(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	chosen := resolveServices(t, sess.ServiceOptions, input)
	if len(chosen) == 0 {
		return replyPickServices
	}

	start, err := time.Parse(time.RFC3339, sess.Slot)
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("slot", sess.Slot).Msg("corrupt slot in session")
		return b.toMenu(ctx, t, contact)
	}
	start = start.In(t.Location())

	staff := t.StaffByID(sess.StaffID)
	if sess.StaffID != "" && (staff == nil || !staff.Active) {
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyStaffGone+"\n\n"+menuText(t))
	}

	var total time.Duration
	for _, svc := range chosen {
		total += time.Duration(svc.DurationMinutes) * time.Minute
	}
	if short := b.engine.ClosingShortfall(t, staff, start, total); short > 0 {
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu},
			shortfallText(short)+"\n\n"+menuText(t))
	}

	bk, err := b.committer.Commit(ctx, booking.Request{
		Tenant:       t,
		Staff:        staff,
		Start:        start,
		CustomerName: sess.CustomerName,
		Contact:      contact,
		Services:     chosen,
	})
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Str("tenant_id", t.ID).Msg("failed to commit booking")
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyBookingFailed+"\n\n"+menuText(t))
	}

	b.notifyStaff(ctx, t, staff, newBookingNotice(bk, t))
	return b.save(ctx, t, contact, &session.Session{Step: stepFinished}, confirmationText(t, staff, bk))
}

func (b *Bot) listAppointments(ctx context.Context, t *tenant.Tenant, contact string) string {
	bookings, err := b.bookings.FindFutureByContact(ctx, t.ID, contact, b.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list bookings")
		return b.failToMenu(ctx, t, contact)
	}
	if len(bookings) == 0 {
		return replyNoAppointments
	}
	return appointmentListText(t, bookings)
}

func (b *Bot) startCancellation(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session) string {
	bookings, err := b.bookings.FindFutureByContact(ctx, t.ID, contact, b.clock.Now())
	if err != nil {
		log.Ctx(ctx).Error().Err(err).Msg("failed to list bookings")
		return b.failToMenu(ctx, t, contact)
	}
	if len(bookings) == 0 {
		return replyNoAppointments
	}

	*sess = session.Session{Step: stepCancelSelect}
	sess.BookingOptions = make([]string, len(bookings))
	for i, bk := range bookings {
		sess.BookingOptions[i] = bk.ID
	}
	return b.save(ctx, t, contact, sess, cancelListText(t, bookings))
}

func (b *Bot) handleCancelSelect(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	if strings.TrimSpace(input) == "0" {
		return b.toMenu(ctx, t, contact)
	}
	idx, ok := parseIndex(input, len(sess.BookingOptions))
	if !ok {
		return replyPickNumber
	}
	bk, err := b.bookings.GetByID(ctx, sess.BookingOptions[idx])
	if err != nil || bk.Status != store.StatusConfirmed {
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyBookingGone+"\n\n"+menuText(t))
	}
	sess.PendingCancelID = bk.ID
	sess.Step = stepCancelConfirm
	return b.save(ctx, t, contact, sess, cancelConfirmText(t, bk))
}

func (b *Bot) handleCancelConfirm(ctx context.Context, t *tenant.Tenant, contact string, sess *session.Session, input string) string {
	switch input {
	case "yes", "y":
		bk, err := b.bookings.GetByID(ctx, sess.PendingCancelID)
		if err != nil {
			log.Ctx(ctx).Error().Err(err).Str("booking_id", sess.PendingCancelID).Msg("failed to load booking")
			return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyBookingGone+"\n\n"+menuText(t))
		}
		if err := b.canceller.Cancel(ctx, t, bk); err != nil {
			log.Ctx(ctx).Error().Err(err).Str("booking_id", bk.ID).Msg("failed to cancel booking")
			return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyCancelFailed+"\n\n"+menuText(t))
		}
		b.notifyStaff(ctx, t, t.StaffByID(bk.StaffID), cancelledBookingNotice(bk, t))
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyCancelled+"\n\n"+menuText(t))
	case "no", "n":
		return b.save(ctx, t, contact, &session.Session{Step: stepMenu}, replyKept+"\n\n"+menuText(t))
	default:
		return replyYesOrNo
	}
}

// notifyStaff sends a best-effort note to the staff member's own contact.
func (b *Bot) notifyStaff(ctx context.Context, t *tenant.Tenant, staff *tenant.StaffMember, notice string) {
	if b.messenger == nil || staff == nil || staff.NotifyContact == "" {
		return
	}
	if err := b.messenger.Send(ctx, t.WhatsAppNumber, staff.NotifyContact, notice); err != nil {
		log.Ctx(ctx).Warn().Err(err).
			Str("tenant_id", t.ID).
			Str("staff_id", staff.ID).
			Msg("failed to notify staff")
	}
}

// offeredServices returns the tenant's services the given staff member
// performs, in configuration order. A nil staff member offers everything,
// and a specialty set that matches nothing falls back to the full list.
func offeredServices(t *tenant.Tenant, staff *tenant.StaffMember) []tenant.Service {
	if staff == nil {
		return t.Services
	}
	var offered []tenant.Service
	for _, svc := range t.Services {
		if staff.DoesService(svc.Name) {
			offered = append(offered, svc)
		}
	}
	if len(offered) == 0 {
		return t.Services
	}
	return offered
}

// resolveServices maps user input onto the offered service names stored in
// the session: comma-separated numbers, or a single service name. Duplicate
// and out-of-range numbers are ignored.
func resolveServices(t *tenant.Tenant, offeredNames []string, input string) []tenant.Service {
	var chosen []tenant.Service
	seen := make(map[string]struct{})

	add := func(name string) {
		svc := t.ServiceByName(name)
		if svc == nil {
			return
		}
		if _, dup := seen[svc.Name]; dup {
			return
		}
		seen[svc.Name] = struct{}{}
		chosen = append(chosen, *svc)
	}

	numeric := true
	parts := strings.Split(input, ",")
	for _, part := range parts {
		if _, err := strconv.Atoi(strings.TrimSpace(part)); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		for _, part := range parts {
			n, _ := strconv.Atoi(strings.TrimSpace(part))
			if n >= 1 && n <= len(offeredNames) {
				add(offeredNames[n-1])
			}
		}
		return chosen
	}

	// Fall back to a name match against what was offered.
	want := strings.TrimSpace(input)
	for _, name := range offeredNames {
		if strings.EqualFold(name, want) {
			add(name)
			break
		}
	}
	return chosen
}

// parseIndex turns a 1-based numbered reply into a 0-based index.
func parseIndex(input string, n int) (int, bool) {
	v, err := strconv.Atoi(strings.TrimSpace(input))
	if err != nil || v < 1 || v > n {
		return 0, false
	}
	return v - 1, true
}
