// Package catalog loads the festival's event and staff seed file and upserts
// it into the store at startup.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"

	"festpass/internal/model"
)

type EventSeed struct {
	Slug                 string     `yaml:"slug"`
	Name                 string     `yaml:"name"`
	Category             string     `yaml:"category"`
	Description          string     `yaml:"description"`
	Fee                  int64      `yaml:"fee"`
	FeeMode              string     `yaml:"fee_mode"`
	MaxParticipants      int        `yaml:"max_participants"`
	TeamSizeMin          int        `yaml:"team_size_min"`
	TeamSizeMax          int        `yaml:"team_size_max"`
	Active               *bool      `yaml:"active"`
	RegistrationDeadline *time.Time `yaml:"registration_deadline"`
	EventDate            *time.Time `yaml:"event_date"`
	Venue                string     `yaml:"venue"`
}

// StaffSeed carries a bcrypt hash, never a plain password.
type StaffSeed struct {
	Email        string `yaml:"email"`
	Name         string `yaml:"name"`
	Role         string `yaml:"role"`
	PasswordHash string `yaml:"password_hash"`
}

type File struct {
	Events []EventSeed `yaml:"events"`
	Staff  []StaffSeed `yaml:"staff"`
}

// Store is the part of the repository the seeder writes through.
type Store interface {
	UpsertEvent(ctx context.Context, e *model.Event) error
	UpsertStaff(ctx context.Context, s *model.Staff) error
}

func FromYAML(data []byte) (*File, error) {
	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("catalog: parse: %w", err)
	}
	if err := f.Validate(); err != nil {
		return nil, err
	}
	return &f, nil
}

func FromFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return FromYAML(data)
}

func (f *File) Validate() error {
	var errs []error
	slugs := make(map[string]struct{}, len(f.Events))
	for i, e := range f.Events {
		where := fmt.Sprintf("events[%d]", i)
		if e.Slug == "" {
			errs = append(errs, fmt.Errorf("%s: slug is required", where))
		} else if _, dup := slugs[e.Slug]; dup {
			errs = append(errs, fmt.Errorf("%s: duplicate slug %q", where, e.Slug))
		}
		slugs[e.Slug] = struct{}{}
		if e.Name == "" || e.Category == "" {
			errs = append(errs, fmt.Errorf("%s: name and category are required", where))
		}
		if e.Fee < 0 {
			errs = append(errs, fmt.Errorf("%s: fee must not be negative", where))
		}
		if e.FeeMode != "" && !model.FeeMode(e.FeeMode).IsValid() {
			errs = append(errs, fmt.Errorf("%s: unknown fee_mode %q", where, e.FeeMode))
		}
		if e.MaxParticipants <= 0 {
			errs = append(errs, fmt.Errorf("%s: max_participants must be positive", where))
		}
		if e.TeamSizeMin < 0 || e.TeamSizeMax < 0 ||
			(e.TeamSizeMin > 0 && e.TeamSizeMax > 0 && e.TeamSizeMin > e.TeamSizeMax) {
			errs = append(errs, fmt.Errorf("%s: bad team size range %d..%d", where, e.TeamSizeMin, e.TeamSizeMax))
		}
	}
	for i, s := range f.Staff {
		where := fmt.Sprintf("staff[%d]", i)
		if s.Email == "" || s.PasswordHash == "" {
			errs = append(errs, fmt.Errorf("%s: email and password_hash are required", where))
		}
		if s.Role != "" && s.Role != string(model.RoleAdmin) && s.Role != string(model.RoleStaff) {
			errs = append(errs, fmt.Errorf("%s: unknown role %q", where, s.Role))
		}
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("catalog: %w", err)
	}
	return nil
}

func (e EventSeed) Event() model.Event {
	mode := model.FeeMode(e.FeeMode)
	if mode == "" {
		mode = model.FeePerTeam
	}
	active := true
	if e.Active != nil {
		active = *e.Active
	}
	return model.Event{
		Slug:                 e.Slug,
		Name:                 strings.TrimSpace(e.Name),
		Category:             strings.TrimSpace(e.Category),
		Description:          e.Description,
		Fee:                  e.Fee,
		FeeMode:              mode,
		MaxParticipants:      e.MaxParticipants,
		TeamSizeMin:          e.TeamSizeMin,
		TeamSizeMax:          e.TeamSizeMax,
		IsActive:             active,
		RegistrationDeadline: e.RegistrationDeadline,
		EventDate:            e.EventDate,
		Venue:                e.Venue,
	}
}

func (s StaffSeed) Staff() model.Staff {
	role := model.StaffRole(s.Role)
	if role == "" {
		role = model.RoleStaff
	}
	return model.Staff{
		Email:        s.Email,
		Name:         s.Name,
		Role:         role,
		PasswordHash: s.PasswordHash,
	}
}

// Seed upserts every event and staff user in f. Events are matched by slug so
// reseeding never resets participant counters.
func Seed(ctx context.Context, store Store, f *File, log *zerolog.Logger) error {
	for _, es := range f.Events {
		e := es.Event()
		if err := store.UpsertEvent(ctx, &e); err != nil {
			return fmt.Errorf("catalog: seed event %s: %w", es.Slug, err)
		}
	}
	for _, ss := range f.Staff {
		s := ss.Staff()
		if err := store.UpsertStaff(ctx, &s); err != nil {
			return fmt.Errorf("catalog: seed staff %s: %w", ss.Email, err)
		}
	}
	if log != nil {
		log.Info().Int("events", len(f.Events)).Int("staff", len(f.Staff)).Msg("Catalog seeded")
	}
	return nil
}
