package counts

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/syrax68/gestion-pieces-sub001/internal/ledger"
	"github.com/syrax68/gestion-pieces-sub001/internal/shared"
)

// RepositoryPort is the persistence surface the service depends on.
type RepositoryPort interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, boutiqueID, id int64) (Session, []LineItem, error)
	List(ctx context.Context, filters ListFilters) ([]Session, int, error)
}

// AuditPort records session events.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service orchestrates inventory count sessions.
type Service struct {
	repo   RepositoryPort
	engine *ledger.Engine
	audit  AuditPort
}

// NewService constructs Service.
func NewService(repo RepositoryPort, engine *ledger.Engine, audit AuditPort) *Service {
	return &Service{repo: repo, engine: engine, audit: audit}
}

// Start opens a session and snapshots theoretical quantities. An empty
// partIDs slice covers every active part of the boutique.
func (s *Service) Start(ctx context.Context, partIDs []int64) (Session, []LineItem, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Session{}, nil, shared.ErrBoutiqueScope
	}

	session := Session{
		BoutiqueID: scope.BoutiqueID,
		Status:     StatusEnCours,
		CreatedBy:  scope.UserID,
	}
	var lines []LineItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		snapshot, err := tx.SnapshotParts(ctx, scope.BoutiqueID, partIDs)
		if err != nil {
			return err
		}
		if len(snapshot) == 0 {
			return fmt.Errorf("%w: no active parts to count", shared.ErrValidation)
		}
		number, err := tx.NextNumber(ctx, scope.BoutiqueID)
		if err != nil {
			return err
		}
		session.Number = number
		id, err := tx.InsertSession(ctx, session)
		if err != nil {
			return err
		}
		session.ID = id
		lines = snapshot
		for i := range lines {
			lines[i].SessionID = id
			lineID, err := tx.InsertLine(ctx, lines[i])
			if err != nil {
				return err
			}
			lines[i].ID = lineID
		}
		return nil
	})
	if err != nil {
		return Session{}, nil, err
	}

	s.record(ctx, scope, "inventory_count:start", session.ID, map[string]any{"number": session.Number, "lines": len(lines)})
	return session, lines, nil
}

// RecordCount stores the physical quantity for one line and marks it
// validated. Lines are mutable only while the session is EN_COURS; recounting
// a line overwrites the previous figure.
func (s *Service) RecordCount(ctx context.Context, sessionID, lineID, counted int64) (LineItem, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return LineItem{}, shared.ErrBoutiqueScope
	}
	if counted < 0 {
		return LineItem{}, fmt.Errorf("%w: counted quantity cannot be negative", shared.ErrValidation)
	}

	var line LineItem
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		session, err := tx.GetSessionForUpdate(ctx, scope.BoutiqueID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != StatusEnCours {
			return fmt.Errorf("%w: session %s is frozen", shared.ErrInvalidState, session.Status)
		}
		line, err = tx.GetLineForUpdate(ctx, session.ID, lineID)
		if err != nil {
			return err
		}
		line.Counted = &counted
		line.Variance = counted - line.Theoretical
		line.Validated = true
		return tx.UpdateLine(ctx, line)
	})
	if err != nil {
		return LineItem{}, err
	}
	return line, nil
}

// Validate closes the session. One INVENTORY_RECONCILE per counted validated
// line sets stock to the physical figure; uncounted lines keep their stock
// untouched. Requires at least one counted line. The aggregate signed
// variance lands on the header.
func (s *Service) Validate(ctx context.Context, sessionID int64) (Session, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Session{}, shared.ErrBoutiqueScope
	}

	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		session, err = tx.GetSessionForUpdate(ctx, scope.BoutiqueID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != StatusEnCours {
			return fmt.Errorf("%w: cannot validate %s session", shared.ErrInvalidState, session.Status)
		}
		lines, err := tx.GetLines(ctx, session.ID)
		if err != nil {
			return err
		}

		store := tx.Ledger()
		counted := 0
		var totalVariance int64
		for _, line := range lines {
			if !line.Validated || line.Counted == nil {
				continue
			}
			counted++
			totalVariance += line.Variance
			_, err := s.engine.Apply(ctx, store, ledger.MovementInput{
				PartID:      line.PartID,
				BoutiqueID:  scope.BoutiqueID,
				Type:        ledger.MovementInventoryReconcile,
				Quantity:    *line.Counted,
				Reason:      "inventaire physique",
				DocumentRef: session.Number,
				ActorID:     scope.UserID,
			})
			if err != nil {
				return err
			}
		}
		if counted == 0 {
			return fmt.Errorf("%w: no counted line to validate", shared.ErrValidation)
		}

		now := time.Now().UTC()
		session.Status = StatusValide
		session.TotalVariance = totalVariance
		session.CompletedAt = &now
		return tx.MarkValidated(ctx, session.ID, totalVariance, now)
	})
	if err != nil {
		return Session{}, err
	}

	s.record(ctx, scope, "inventory_count:validate", session.ID, map[string]any{"number": session.Number, "total_variance": session.TotalVariance})
	return session, nil
}

// Cancel closes the session with no stock effect.
func (s *Service) Cancel(ctx context.Context, sessionID int64) (Session, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Session{}, shared.ErrBoutiqueScope
	}

	var session Session
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		var err error
		session, err = tx.GetSessionForUpdate(ctx, scope.BoutiqueID, sessionID)
		if err != nil {
			return err
		}
		if session.Status != StatusEnCours {
			return fmt.Errorf("%w: cannot cancel %s session", shared.ErrInvalidState, session.Status)
		}
		now := time.Now().UTC()
		session.Status = StatusAnnule
		session.CompletedAt = &now
		return tx.MarkCancelled(ctx, session.ID, now)
	})
	if err != nil {
		return Session{}, err
	}

	s.record(ctx, scope, "inventory_count:cancel", session.ID, map[string]any{"number": session.Number})
	return session, nil
}

// Get loads one session with lines within the caller's boutique.
func (s *Service) Get(ctx context.Context, id int64) (Session, []LineItem, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return Session{}, nil, shared.ErrBoutiqueScope
	}
	return s.repo.Get(ctx, scope.BoutiqueID, id)
}

// List returns session headers for the caller's boutique.
func (s *Service) List(ctx context.Context, filters ListFilters) ([]Session, int, error) {
	scope, ok := shared.ScopeFromContext(ctx)
	if !ok {
		return nil, 0, shared.ErrBoutiqueScope
	}
	filters.BoutiqueID = scope.BoutiqueID
	return s.repo.List(ctx, filters)
}

func (s *Service) record(ctx context.Context, scope shared.Scope, action string, entityID int64, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:    scope.UserID,
		BoutiqueID: scope.BoutiqueID,
		Action:     action,
		Entity:     "inventory_count",
		EntityID:   strconv.FormatInt(entityID, 10),
		Meta:       meta,
		At:         time.Now().UTC(),
	})
}
