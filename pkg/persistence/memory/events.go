package memory

import (
	"context"
	"sort"
	"time"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence"
)

func (p *Persistence) InsertEvent(_ context.Context, event *models.DomainEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.events[event.ID] = copyEvent(event)

	return nil
}

func (p *Persistence) ClaimPendingEvents(_ context.Context, limit int) ([]*models.DomainEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	pending := make([]*models.DomainEvent, 0)

	for _, event := range p.events {
		if event.Status == models.EventStatusPending {
			pending = append(pending, event)
		}
	}

	sort.Slice(pending, func(i, j int) bool {
		if pending[i].CreatedAt.Equal(pending[j].CreatedAt) {
			return pending[i].ID < pending[j].ID
		}

		return pending[i].CreatedAt.Before(pending[j].CreatedAt)
	})

	if len(pending) > limit {
		pending = pending[:limit]
	}

	now := time.Now().UTC()
	claimed := make([]*models.DomainEvent, 0, len(pending))

	for _, event := range pending {
		event.Status = models.EventStatusProcessing
		event.AttemptCount++
		p.claims[event.ID] = now
		claimed = append(claimed, copyEvent(event))
	}

	return claimed, nil
}

func (p *Persistence) MarkEventCompleted(_ context.Context, id string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, ok := p.events[id]
	if !ok {
		return persistence.NewEventError("Complete", id, persistence.ErrEventNotFound)
	}

	if event.Status != models.EventStatusProcessing {
		return persistence.NewEventError("Complete", id, persistence.ErrEventNotClaimed)
	}

	event.Status = models.EventStatusCompleted
	event.ProcessedAt = &at
	delete(p.claims, id)

	return nil
}

func (p *Persistence) ReleaseEvent(_ context.Context, id string, lastError string) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, ok := p.events[id]
	if !ok {
		return persistence.NewEventError("Release", id, persistence.ErrEventNotFound)
	}

	if event.Status != models.EventStatusProcessing {
		return persistence.NewEventError("Release", id, persistence.ErrEventNotClaimed)
	}

	event.Status = models.EventStatusPending
	event.LastError = lastError
	delete(p.claims, id)

	return nil
}

func (p *Persistence) MarkEventFailed(_ context.Context, id string, lastError string, at time.Time) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	event, ok := p.events[id]
	if !ok {
		return persistence.NewEventError("Fail", id, persistence.ErrEventNotFound)
	}

	event.Status = models.EventStatusFailed
	event.LastError = lastError
	event.FailedAt = &at
	delete(p.claims, id)

	return nil
}

func (p *Persistence) CountPendingEvents(_ context.Context) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var count int64

	for _, event := range p.events {
		if event.Status == models.EventStatusPending {
			count++
		}
	}

	return count, nil
}

func (p *Persistence) EventsByCorrelation(_ context.Context, orgID, correlationID string) ([]*models.DomainEvent, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	matched := make([]*models.DomainEvent, 0)

	for _, event := range p.events {
		if event.OrgID == orgID && event.CorrelationID == correlationID {
			matched = append(matched, copyEvent(event))
		}
	}

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}

		return matched[i].CreatedAt.Before(matched[j].CreatedAt)
	})

	return matched, nil
}

func (p *Persistence) ResetFailedEvents(_ context.Context, orgID string, limit int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	failed := make([]*models.DomainEvent, 0)

	for _, event := range p.events {
		if event.Status != models.EventStatusFailed {
			continue
		}

		if orgID != "" && event.OrgID != orgID {
			continue
		}

		failed = append(failed, event)
	}

	sort.Slice(failed, func(i, j int) bool {
		if failed[i].CreatedAt.Equal(failed[j].CreatedAt) {
			return failed[i].ID < failed[j].ID
		}

		return failed[i].CreatedAt.Before(failed[j].CreatedAt)
	})

	if limit > 0 && len(failed) > limit {
		failed = failed[:limit]
	}

	for _, event := range failed {
		event.Status = models.EventStatusPending
		event.AttemptCount = 0
		event.LastError = ""
		event.FailedAt = nil
	}

	return int64(len(failed)), nil
}

func (p *Persistence) ReleaseStaleEvents(_ context.Context, claimedBefore time.Time) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var released int64

	for id, claimedAt := range p.claims {
		event, ok := p.events[id]
		if !ok || event.Status != models.EventStatusProcessing {
			delete(p.claims, id)

			continue
		}

		if claimedAt.Before(claimedBefore) {
			event.Status = models.EventStatusPending
			delete(p.claims, id)
			released++
		}
	}

	return released, nil
}

func (p *Persistence) DeleteCompletedEventsBefore(_ context.Context, cutoff time.Time, limit int) (int64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	var deleted int64

	for id, event := range p.events {
		if limit > 0 && deleted >= int64(limit) {
			break
		}

		if event.Status != models.EventStatusCompleted {
			continue
		}

		reference := event.CreatedAt
		if event.ProcessedAt != nil {
			reference = *event.ProcessedAt
		}

		if reference.Before(cutoff) {
			delete(p.events, id)
			deleted++
		}
	}

	return deleted, nil
}

func (p *Persistence) EventStats(_ context.Context, orgID string, since time.Time) (*models.EventStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	stats := &models.EventStats{
		ByStatus: make(map[string]int64),
		ByType:   make(map[string]int64),
	}

	for _, event := range p.events {
		if orgID != "" && event.OrgID != orgID {
			continue
		}

		if event.CreatedAt.Before(since) {
			continue
		}

		stats.Total++
		stats.ByStatus[string(event.Status)]++
		stats.ByType[event.Type]++
	}

	return stats, nil
}
