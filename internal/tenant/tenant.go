// Package tenant holds the per-business configuration: working hours,
// services, staff, and the registry that maps inbound business numbers to
// tenants. Schedules are normalized to range lists once, at load time.
package tenant

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nyaruka/phonenumbers"
	"gopkg.in/yaml.v3"
)

// TimeRange is a half-open [Start, End) range of minutes from midnight.
type TimeRange struct {
	Start int
	End   int
}

func (r TimeRange) String() string {
	return fmt.Sprintf("%02d:%02d-%02d:%02d", r.Start/60, r.Start%60, r.End/60, r.End%60)
}

// DaySchedule is the ordered set of working ranges for one weekday. An empty
// or missing schedule means the day is not worked.
type DaySchedule []TimeRange

// UnmarshalYAML accepts both the legacy flat pair ["09:00", "18:00"] and the
// split-shift form [["09:00", "13:00"], ["14:00", "18:00"]], normalizing the
// legacy shape into a one-element range list.
func (d *DaySchedule) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.SequenceNode {
		return fmt.Errorf("day schedule must be a sequence")
	}
	if len(value.Content) == 0 {
		*d = nil
		return nil
	}

	var pairs [][]string
	if value.Content[0].Kind == yaml.ScalarNode {
		// Legacy flat pair.
		var flat []string
		if err := value.Decode(&flat); err != nil {
			return err
		}
		pairs = [][]string{flat}
	} else {
		if err := value.Decode(&pairs); err != nil {
			return err
		}
	}

	ranges := make(DaySchedule, 0, len(pairs))
	for _, pair := range pairs {
		if len(pair) != 2 {
			return fmt.Errorf("time range must have exactly a start and an end, got %v", pair)
		}
		start, err := parseClock(pair[0])
		if err != nil {
			return err
		}
		end, err := parseClock(pair[1])
		if err != nil {
			return err
		}
		if start >= end {
			return fmt.Errorf("time range start %s must be before end %s", pair[0], pair[1])
		}
		ranges = append(ranges, TimeRange{Start: start, End: end})
	}
	*d = ranges
	return nil
}

func parseClock(raw string) (int, error) {
	parsed, err := time.Parse("15:04", strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("time %q must be in HH:MM format", raw)
	}
	return parsed.Hour()*60 + parsed.Minute(), nil
}

// WeekSchedule maps weekdays to working ranges. A weekday absent from the map
// is a day off.
type WeekSchedule map[time.Weekday]DaySchedule

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

func (w *WeekSchedule) UnmarshalYAML(value *yaml.Node) error {
	var byName map[string]DaySchedule
	if err := value.Decode(&byName); err != nil {
		return err
	}
	week := make(WeekSchedule, len(byName))
	for name, sched := range byName {
		day, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
		if !ok {
			return fmt.Errorf("unknown weekday %q", name)
		}
		if len(sched) > 0 {
			week[day] = sched
		}
	}
	*w = week
	return nil
}

// Service is a bookable offering with a fixed price and duration.
type Service struct {
	Name            string `yaml:"name"`
	Price           int    `yaml:"price"`
	DurationMinutes int    `yaml:"duration_minutes"`
}

// StaffMember is a bookable person. Working days are exactly the weekdays
// present in Hours; there is no separate workday set to drift out of sync.
type StaffMember struct {
	ID            string       `yaml:"id"`
	Name          string       `yaml:"name"`
	Active        bool         `yaml:"-"`
	NotifyContact string       `yaml:"notify_contact"`
	Specialties   []string     `yaml:"specialties"`
	Hours         WeekSchedule `yaml:"hours"`
}

// staffYAML exists so that an omitted "active" key defaults to true.
type staffYAML struct {
	ID            string       `yaml:"id"`
	Name          string       `yaml:"name"`
	Active        *bool        `yaml:"active"`
	NotifyContact string       `yaml:"notify_contact"`
	Specialties   []string     `yaml:"specialties"`
	Hours         WeekSchedule `yaml:"hours"`
}

func (s *StaffMember) UnmarshalYAML(value *yaml.Node) error {
	var raw staffYAML
	if err := value.Decode(&raw); err != nil {
		return err
	}
	active := true
	if raw.Active != nil {
		active = *raw.Active
	}
	*s = StaffMember{
		ID:            raw.ID,
		Name:          raw.Name,
		Active:        active,
		NotifyContact: raw.NotifyContact,
		Specialties:   raw.Specialties,
		Hours:         raw.Hours,
	}
	return nil
}

// WorksOn reports whether the staff member has any working range on the
// given weekday.
func (s *StaffMember) WorksOn(day time.Weekday) bool {
	return len(s.Hours[day]) > 0
}

// DoesService reports whether the service name is in the staff member's
// specialty set. An empty specialty set means the staff member performs
// every service the tenant offers.
func (s *StaffMember) DoesService(name string) bool {
	if len(s.Specialties) == 0 {
		return true
	}
	for _, spec := range s.Specialties {
		if strings.EqualFold(spec, name) {
			return true
		}
	}
	return false
}

// Tenant is one business account.
type Tenant struct {
	ID             string        `yaml:"id"`
	Name           string        `yaml:"name"`
	Timezone       string        `yaml:"timezone"`
	WhatsAppNumber string        `yaml:"whatsapp_number"`
	CalendarID     string        `yaml:"calendar_id"`
	Address        string        `yaml:"address"`
	Hours          WeekSchedule  `yaml:"hours"`
	Services       []Service     `yaml:"services"`
	Staff          []StaffMember `yaml:"staff"`

	loc *time.Location
}

// Location returns the tenant's time.Location. Valid after Validate.
func (t *Tenant) Location() *time.Location {
	if t.loc == nil {
		return time.UTC
	}
	return t.loc
}

// ActiveStaff returns the staff members currently accepting bookings, in
// configuration order.
func (t *Tenant) ActiveStaff() []StaffMember {
	active := make([]StaffMember, 0, len(t.Staff))
	for _, s := range t.Staff {
		if s.Active {
			active = append(active, s)
		}
	}
	return active
}

// InactiveStaff returns the staff members flagged as not accepting bookings.
func (t *Tenant) InactiveStaff() []StaffMember {
	var inactive []StaffMember
	for _, s := range t.Staff {
		if !s.Active {
			inactive = append(inactive, s)
		}
	}
	return inactive
}

// StaffByID returns the staff member with the given id, or nil.
func (t *Tenant) StaffByID(id string) *StaffMember {
	for i := range t.Staff {
		if t.Staff[i].ID == id {
			return &t.Staff[i]
		}
	}
	return nil
}

// ServiceByName returns the service with the given name
// (case-insensitive), or nil.
func (t *Tenant) ServiceByName(name string) *Service {
	for i := range t.Services {
		if strings.EqualFold(t.Services[i].Name, name) {
			return &t.Services[i]
		}
	}
	return nil
}

// HoursFor resolves the working ranges for a date: the staff member's
// schedule when one is given, else the tenant default hours. An empty result
// means closed.
func (t *Tenant) HoursFor(staff *StaffMember, day time.Weekday) DaySchedule {
	if staff != nil {
		return staff.Hours[day]
	}
	return t.Hours[day]
}

func (t *Tenant) validate() error {
	if t.ID == "" {
		return fmt.Errorf("tenant id is required")
	}
	if t.Name == "" {
		return fmt.Errorf("tenant %s: name is required", t.ID)
	}
	if t.CalendarID == "" {
		return fmt.Errorf("tenant %s: calendar_id is required", t.ID)
	}
	loc, err := time.LoadLocation(t.Timezone)
	if err != nil {
		return fmt.Errorf("tenant %s: invalid timezone %q: %w", t.ID, t.Timezone, err)
	}
	t.loc = loc

	seen := make(map[string]struct{}, len(t.Staff))
	for _, s := range t.Staff {
		if s.ID == "" || s.Name == "" {
			return fmt.Errorf("tenant %s: staff entries require id and name", t.ID)
		}
		if _, dup := seen[s.ID]; dup {
			return fmt.Errorf("tenant %s: duplicate staff id %q", t.ID, s.ID)
		}
		seen[s.ID] = struct{}{}
	}
	for _, svc := range t.Services {
		if svc.Name == "" {
			return fmt.Errorf("tenant %s: service name is required", t.ID)
		}
		if svc.DurationMinutes <= 0 {
			return fmt.Errorf("tenant %s: service %q needs a positive duration", t.ID, svc.Name)
		}
	}
	return nil
}

// Registry resolves tenants by id and by inbound business number.
type Registry struct {
	byID     map[string]*Tenant
	byNumber map[string]*Tenant
	order    []*Tenant
}

type registryYAML struct {
	Tenants []*Tenant `yaml:"tenants"`
}

// LoadRegistry reads and validates the tenant registry yaml file.
func LoadRegistry(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("error reading tenants file: %w", err)
	}
	return ParseRegistry(data)
}

// ParseRegistry builds a Registry from raw yaml.
func ParseRegistry(data []byte) (*Registry, error) {
	var raw registryYAML
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("error parsing tenants file: %w", err)
	}
	if len(raw.Tenants) == 0 {
		return nil, fmt.Errorf("tenants file defines no tenants")
	}

	reg := &Registry{
		byID:     make(map[string]*Tenant, len(raw.Tenants)),
		byNumber: make(map[string]*Tenant, len(raw.Tenants)),
	}
	for _, t := range raw.Tenants {
		if err := t.validate(); err != nil {
			return nil, err
		}
		if _, dup := reg.byID[t.ID]; dup {
			return nil, fmt.Errorf("duplicate tenant id %q", t.ID)
		}
		reg.byID[t.ID] = t
		if t.WhatsAppNumber != "" {
			reg.byNumber[CanonicalNumber(t.WhatsAppNumber)] = t
		}
		reg.order = append(reg.order, t)
	}
	return reg, nil
}

// ByID returns the tenant with the given id, or nil.
func (r *Registry) ByID(id string) *Tenant {
	return r.byID[id]
}

// ByNumber returns the tenant owning the given business number, matched on
// the canonical form, or nil.
func (r *Registry) ByNumber(number string) *Tenant {
	return r.byNumber[CanonicalNumber(number)]
}

// All returns every tenant in configuration order.
func (r *Registry) All() []*Tenant {
	return r.order
}

// CanonicalNumber normalizes a phone identifier to E.164 so the same user or
// business matches regardless of transport decoration ("whatsapp:" prefixes,
// spacing, dashes). Unparseable input falls back to a trimmed form.
func CanonicalNumber(raw string) string {
	cleaned := strings.TrimSpace(strings.TrimPrefix(strings.TrimSpace(raw), "whatsapp:"))
	parsed, err := phonenumbers.Parse(cleaned, "")
	if err != nil {
		return cleaned
	}
	return phonenumbers.Format(parsed, phonenumbers.E164)
}
