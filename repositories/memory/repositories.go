package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/models"
	"github.com/alextorreswa/Secure-Internal-Chatbot-Design/repositories"
	"github.com/google/uuid"
)

func notFound(what string, id interface{}) error {
	return fmt.Errorf("%s not found: %v: %w", what, id, repositories.ErrNotFound)
}

func copyUUID(p *uuid.UUID) *uuid.UUID {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func copyString(p *string) *string {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

func sameUUID(p *uuid.UUID, id uuid.UUID) bool {
	return p != nil && *p == id
}

// IdentityRepository implements repositories.IdentityRepository
type IdentityRepository struct {
	store *Store
}

func (r *IdentityRepository) Create(ctx context.Context, identity *models.Identity) error {
	return r.store.write(ctx, func(st *state) error {
		if _, exists := st.identities[identity.ID]; exists {
			return fmt.Errorf("identity %s already exists", identity.ID)
		}
		for _, existing := range st.identities {
			if existing.Username == identity.Username {
				return fmt.Errorf("username %q already exists", identity.Username)
			}
		}
		st.identities[identity.ID] = *identity
		return nil
	})
}

func (r *IdentityRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Identity, error) {
	identity, ok := r.store.view(ctx).identities[id]
	if !ok {
		return nil, notFound("identity", id)
	}
	return &identity, nil
}

func (r *IdentityRepository) GetByUsername(ctx context.Context, username string) (*models.Identity, error) {
	for _, identity := range r.store.view(ctx).identities {
		if identity.Username == username {
			return &identity, nil
		}
	}
	return nil, notFound("identity", username)
}

func (r *IdentityRepository) UpdateRole(ctx context.Context, id uuid.UUID, role models.Role, updatedAt time.Time) error {
	return r.store.write(ctx, func(st *state) error {
		identity, ok := st.identities[id]
		if !ok {
			return notFound("identity", id)
		}
		identity.Role = role
		identity.UpdatedAt = updatedAt
		st.identities[id] = identity
		return nil
	})
}

// Delete enforces the same reference checks as the postgres foreign keys
func (r *IdentityRepository) Delete(ctx context.Context, id uuid.UUID) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.identities[id]; !ok {
			return notFound("identity", id)
		}
		for _, rec := range st.interactions {
			if sameUUID(rec.IdentityID, id) {
				return fmt.Errorf("identity %s still referenced by interaction %d", id, rec.ID)
			}
		}
		for _, rep := range st.reports {
			if sameUUID(rep.IdentityID, id) {
				return fmt.Errorf("identity %s still referenced by report %d", id, rep.ID)
			}
		}
		for _, ev := range st.events {
			if sameUUID(ev.ActorID, id) {
				return fmt.Errorf("identity %s still referenced by audit event %d", id, ev.ID)
			}
		}
		for _, a := range st.assignments {
			if sameUUID(a.DriverID, id) {
				return fmt.Errorf("identity %s still referenced by assignment %d", id, a.ID)
			}
		}
		delete(st.identities, id)
		return nil
	})
}

// InteractionRepository implements repositories.InteractionRepository
type InteractionRepository struct {
	store *Store
}

func cloneInteraction(rec models.InteractionRecord) *models.InteractionRecord {
	rec.IdentityID = copyUUID(rec.IdentityID)
	rec.FlagReason = copyString(rec.FlagReason)
	return &rec
}

func (r *InteractionRepository) Create(ctx context.Context, record *models.InteractionRecord) error {
	return r.store.write(ctx, func(st *state) error {
		if record.IdentityID != nil {
			if _, ok := st.identities[*record.IdentityID]; !ok {
				return notFound("identity", *record.IdentityID)
			}
		}
		st.seq.interaction++
		record.ID = st.seq.interaction
		st.interactions[record.ID] = *cloneInteraction(*record)
		return nil
	})
}

func (r *InteractionRepository) GetByID(ctx context.Context, id int64) (*models.InteractionRecord, error) {
	rec, ok := r.store.view(ctx).interactions[id]
	if !ok {
		return nil, notFound("interaction", id)
	}
	return cloneInteraction(rec), nil
}

// GetForUpdate is GetByID; the writer lock already serializes transactions
func (r *InteractionRepository) GetForUpdate(ctx context.Context, id int64) (*models.InteractionRecord, error) {
	if err := r.store.requireTx(ctx, "row lock"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *InteractionRepository) ListByIdentity(ctx context.Context, identityID uuid.UUID, limit, offset int) ([]*models.InteractionRecord, error) {
	var out []*models.InteractionRecord
	for _, rec := range r.store.view(ctx).interactions {
		if sameUUID(rec.IdentityID, identityID) {
			out = append(out, cloneInteraction(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Timestamp.Equal(out[j].Timestamp) {
			return out[i].ID > out[j].ID
		}
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return page(out, limit, offset), nil
}

func (r *InteractionRepository) MarkFlagged(ctx context.Context, id int64, reason *string) error {
	return r.store.write(ctx, func(st *state) error {
		rec, ok := st.interactions[id]
		if !ok || rec.Flagged {
			return notFound("unflagged interaction", id)
		}
		rec.Flagged = true
		rec.FlagReason = copyString(reason)
		st.interactions[id] = rec
		return nil
	})
}

func (r *InteractionRepository) DeleteByIdentity(ctx context.Context, identityID uuid.UUID) ([]int64, error) {
	var ids []int64
	err := r.store.write(ctx, func(st *state) error {
		for id, rec := range st.interactions {
			if !sameUUID(rec.IdentityID, identityID) {
				continue
			}
			for _, rep := range st.reports {
				if rep.InteractionID == id {
					return fmt.Errorf("interaction %d still referenced by report %d", id, rep.ID)
				}
			}
			ids = append(ids, id)
		}
		for _, id := range ids {
			delete(st.interactions, id)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// AnomalyRepository implements repositories.AnomalyRepository
type AnomalyRepository struct {
	store *Store
}

func cloneReport(rep models.AnomalyReport) *models.AnomalyReport {
	rep.IdentityID = copyUUID(rep.IdentityID)
	return &rep
}

func (r *AnomalyRepository) Create(ctx context.Context, report *models.AnomalyReport) error {
	return r.store.write(ctx, func(st *state) error {
		if _, ok := st.interactions[report.InteractionID]; !ok {
			return notFound("interaction", report.InteractionID)
		}
		st.seq.report++
		report.ID = st.seq.report
		st.reports[report.ID] = *cloneReport(*report)
		return nil
	})
}

func (r *AnomalyRepository) GetByID(ctx context.Context, id int64) (*models.AnomalyReport, error) {
	rep, ok := r.store.view(ctx).reports[id]
	if !ok {
		return nil, notFound("anomaly report", id)
	}
	return cloneReport(rep), nil
}

func (r *AnomalyRepository) GetForUpdate(ctx context.Context, id int64) (*models.AnomalyReport, error) {
	if err := r.store.requireTx(ctx, "row lock"); err != nil {
		return nil, err
	}
	return r.GetByID(ctx, id)
}

func (r *AnomalyRepository) ListByInteraction(ctx context.Context, interactionID int64) ([]*models.AnomalyReport, error) {
	var out []*models.AnomalyReport
	for _, rep := range r.store.view(ctx).reports {
		if rep.InteractionID == interactionID {
			out = append(out, cloneReport(rep))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (r *AnomalyRepository) UpdateStatus(ctx context.Context, id int64, status models.AnomalyStatus, updatedAt time.Time) error {
	return r.store.write(ctx, func(st *state) error {
		rep, ok := st.reports[id]
		if !ok {
			return notFound("anomaly report", id)
		}
		rep.Status = status
		rep.UpdatedAt = updatedAt
		st.reports[id] = rep
		return nil
	})
}

func (r *AnomalyRepository) DeleteByInteractionOwner(ctx context.Context, identityID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		for id, rep := range st.reports {
			if rec, ok := st.interactions[rep.InteractionID]; ok && sameUUID(rec.IdentityID, identityID) {
				delete(st.reports, id)
				n++
			}
		}
		return nil
	})
	return n, err
}

func (r *AnomalyRepository) ClearIdentity(ctx context.Context, identityID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		for id, rep := range st.reports {
			if sameUUID(rep.IdentityID, identityID) {
				rep.IdentityID = nil
				st.reports[id] = rep
				n++
			}
		}
		return nil
	})
	return n, err
}

// AuditEventRepository implements repositories.AuditEventRepository.
// Events are kept in id order.
type AuditEventRepository struct {
	store *Store
}

func cloneEvent(ev models.AuditEvent) *models.AuditEvent {
	ev.ActorID = copyUUID(ev.ActorID)
	return &ev
}

// LockChain only checks for a transaction; the writer lock already
// linearizes appends
func (r *AuditEventRepository) LockChain(ctx context.Context) error {
	return r.store.requireTx(ctx, "ledger lock")
}

func (r *AuditEventRepository) Last(ctx context.Context) (*models.AuditEvent, error) {
	events := r.store.view(ctx).events
	if len(events) == 0 {
		return nil, notFound("audit event", "head")
	}
	return cloneEvent(events[len(events)-1]), nil
}

func (r *AuditEventRepository) Insert(ctx context.Context, event *models.AuditEvent) error {
	return r.store.write(ctx, func(st *state) error {
		st.seq.event++
		event.ID = st.seq.event
		st.events = append(st.events, *cloneEvent(*event))
		return nil
	})
}

// search returns the index of the first event with ID >= id
func search(events []models.AuditEvent, id int64) int {
	return sort.Search(len(events), func(i int) bool { return events[i].ID >= id })
}

func (r *AuditEventRepository) GetByID(ctx context.Context, id int64) (*models.AuditEvent, error) {
	events := r.store.view(ctx).events
	i := search(events, id)
	if i == len(events) || events[i].ID != id {
		return nil, notFound("audit event", id)
	}
	return cloneEvent(events[i]), nil
}

func (r *AuditEventRepository) Before(ctx context.Context, id int64) (*models.AuditEvent, error) {
	events := r.store.view(ctx).events
	i := search(events, id)
	if i == 0 {
		return nil, notFound("audit event before", id)
	}
	return cloneEvent(events[i-1]), nil
}

func (r *AuditEventRepository) Range(ctx context.Context, fromID, toID int64, limit int) ([]*models.AuditEvent, error) {
	events := r.store.view(ctx).events
	var out []*models.AuditEvent
	for i := search(events, fromID); i < len(events) && events[i].ID <= toID; i++ {
		if limit > 0 && len(out) == limit {
			break
		}
		out = append(out, cloneEvent(events[i]))
	}
	return out, nil
}

func (r *AuditEventRepository) Find(ctx context.Context, filter repositories.AuditFilter, afterID int64, limit int) ([]*models.AuditEvent, error) {
	events := r.store.view(ctx).events
	var out []*models.AuditEvent
	for i := search(events, afterID+1); i < len(events); i++ {
		ev := events[i]
		if filter.ToID > 0 && ev.ID > filter.ToID {
			break
		}
		if !matches(filter, ev) {
			continue
		}
		out = append(out, cloneEvent(ev))
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

func matches(f repositories.AuditFilter, ev models.AuditEvent) bool {
	switch {
	case f.FromID > 0 && ev.ID < f.FromID:
		return false
	case f.ActorID != nil && ev.ActorRef != f.ActorID.String():
		return false
	case f.Action != "" && ev.Action != f.Action:
		return false
	case f.TargetPrefix != "" && !strings.HasPrefix(ev.Target, f.TargetPrefix):
		return false
	case !f.Since.IsZero() && ev.Timestamp.Before(f.Since):
		return false
	case !f.Until.IsZero() && !ev.Timestamp.Before(f.Until):
		return false
	}
	return true
}

func (r *AuditEventRepository) ClearActor(ctx context.Context, actorID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		for i := range st.events {
			if sameUUID(st.events[i].ActorID, actorID) {
				st.events[i].ActorID = nil
				n++
			}
		}
		return nil
	})
	return n, err
}

// AssignmentRepository implements repositories.AssignmentRepository
type AssignmentRepository struct {
	store *Store
}

func cloneAssignment(a models.AssignmentRecord) *models.AssignmentRecord {
	a.DriverID = copyUUID(a.DriverID)
	a.ReassignmentReason = copyString(a.ReassignmentReason)
	return &a
}

func (r *AssignmentRepository) Create(ctx context.Context, record *models.AssignmentRecord) error {
	return r.store.write(ctx, func(st *state) error {
		st.seq.assignment++
		record.ID = st.seq.assignment
		st.assignments[record.ID] = *cloneAssignment(*record)
		return nil
	})
}

func (r *AssignmentRepository) LockShipment(ctx context.Context, shipmentRef string) error {
	return r.store.requireTx(ctx, "shipment lock")
}

func (r *AssignmentRepository) Active(ctx context.Context, shipmentRef string) (*models.AssignmentRecord, error) {
	records, _ := r.ListByShipment(ctx, shipmentRef)
	active := models.ActiveAssignment(records)
	if active == nil {
		return nil, notFound("active assignment", shipmentRef)
	}
	return active, nil
}

func (r *AssignmentRepository) ListByShipment(ctx context.Context, shipmentRef string) ([]*models.AssignmentRecord, error) {
	var out []*models.AssignmentRecord
	for _, a := range r.store.view(ctx).assignments {
		if a.ShipmentRef == shipmentRef {
			out = append(out, cloneAssignment(a))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[j].Supersedes(out[i]) })
	return out, nil
}

func (r *AssignmentRepository) ClearDriver(ctx context.Context, driverID uuid.UUID) (int64, error) {
	var n int64
	err := r.store.write(ctx, func(st *state) error {
		for id, a := range st.assignments {
			if sameUUID(a.DriverID, driverID) {
				a.DriverID = nil
				st.assignments[id] = a
				n++
			}
		}
		return nil
	})
	return n, err
}

func page[T any](items []T, limit, offset int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && limit < len(items) {
		items = items[:limit]
	}
	return items
}
