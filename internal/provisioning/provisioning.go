// Package provisioning creates the chat channels a module ships with
// when a tenant turns it on.
package provisioning

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/lalith-99/festivo/internal/apperr"
	"github.com/lalith-99/festivo/internal/clearance"
	"github.com/lalith-99/festivo/internal/models"
	"github.com/lalith-99/festivo/internal/modules"
	"github.com/lalith-99/festivo/internal/realtime"
	"github.com/lalith-99/festivo/internal/repository"
	"go.uber.org/zap"
)

// Service implements modules.Provisioner.
type Service struct {
	store     repository.Store
	publisher realtime.Publisher
	logger    *zap.Logger
}

var _ modules.Provisioner = (*Service)(nil)

func NewService(store repository.Store, publisher realtime.Publisher, logger *zap.Logger) *Service {
	if publisher == nil {
		publisher = realtime.NopPublisher{}
	}
	return &Service{store: store, publisher: publisher, logger: logger}
}

// ProvisionModule creates each baseline channel of the module and
// enrolls every tenant member cleared for it.
//
// Each channel is its own transaction. Channels are matched by
// (tenant, name), so running this again after a partial failure only
// fills in what is missing. A name already taken by a channel the module
// does not own is a conflict and nobody is enrolled into it. All channel
// errors are returned together.
func (s *Service) ProvisionModule(ctx context.Context, tenantID uuid.UUID, moduleID string) error {
	def, ok := modules.Lookup(moduleID)
	if !ok {
		return apperr.ErrUnknownModule
	}
	if len(def.BaselineChannels) == 0 {
		return nil
	}

	var result *multierror.Error
	created := make([]models.Channel, 0, len(def.BaselineChannels))
	for _, bc := range def.BaselineChannels {
		ch, err := s.provisionChannel(ctx, tenantID, def.ID, bc)
		if err != nil {
			result = multierror.Append(result, fmt.Errorf("channel %s: %w", bc.Name, err))
			continue
		}
		created = append(created, *ch)
	}

	if len(created) > 0 {
		s.announce(ctx, tenantID, def, created)
	}
	return result.ErrorOrNil()
}

func (s *Service) provisionChannel(ctx context.Context, tenantID uuid.UUID, moduleID string, bc modules.BaselineChannel) (*models.Channel, error) {
	var ch *models.Channel
	err := s.store.InTx(ctx, func(r repository.Repositories) error {
		mod := moduleID
		var err error
		ch, err = r.Channels.CreateIfAbsent(ctx, models.Channel{
			TenantID:     tenantID,
			ModuleID:     &mod,
			Name:         bc.Name,
			IsPrivate:    bc.IsPrivate,
			MinClearance: bc.MinClearance,
		})
		if err != nil {
			return fmt.Errorf("create: %w", err)
		}
		// A same-named channel that the module does not own keeps its own
		// visibility rules; enrolling into it would widen access.
		if ch.ModuleID == nil || *ch.ModuleID != moduleID {
			return apperr.Conflictf("channel %q already exists and is not owned by module %s", bc.Name, moduleID)
		}

		members, err := r.Memberships.ListByTenant(ctx, tenantID)
		if err != nil {
			return fmt.Errorf("list members: %w", err)
		}
		eligible := make([]uuid.UUID, 0, len(members))
		for _, m := range members {
			if clearance.HasAccess(m.ClearanceLevel, ch.MinClearance) {
				eligible = append(eligible, m.UserID)
			}
		}
		if err := r.ChannelMembers.AddMembers(ctx, ch.ID, eligible, "member"); err != nil {
			return fmt.Errorf("enroll members: %w", err)
		}

		s.logger.Debug("baseline channel provisioned",
			zap.String("tenant_id", tenantID.String()),
			zap.String("module", moduleID),
			zap.String("channel", ch.Name),
			zap.Int("enrolled", len(eligible)),
		)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ch, nil
}

type activatedPayload struct {
	ModuleID string           `json:"module_id"`
	Channels []models.Channel `json:"channels"`
}

func (s *Service) announce(ctx context.Context, tenantID uuid.UUID, def modules.Definition, channels []models.Channel) {
	ev, err := realtime.NewEvent(realtime.EventModuleActivated, tenantID, def.RequiredClearance, nil,
		activatedPayload{ModuleID: def.ID, Channels: channels})
	if err == nil {
		err = s.publisher.Publish(ctx, ev)
	}
	if err != nil {
		s.logger.Warn("publish module activation failed",
			zap.String("tenant_id", tenantID.String()),
			zap.String("module", def.ID),
			zap.Error(err),
		)
	}
}
