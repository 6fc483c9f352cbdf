package automation

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/statusflowhq/statusflow/pkg/models"
	"github.com/statusflowhq/statusflow/pkg/persistence/memory"
)

func TestTriggerMatches(t *testing.T) {
	tests := []struct {
		name     string
		trigger  models.TriggerCondition
		from, to models.Status
		object   models.EntityType
		expected bool
	}{
		{
			name:     "object type and to status match",
			trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			object:   models.EntityTypeQuote,
			from:     "draft",
			to:       "sent",
			expected: true,
		},
		{
			name:     "object type mismatch",
			trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			object:   models.EntityTypeProject,
			from:     "draft",
			to:       "sent",
			expected: false,
		},
		{
			name:     "to status mismatch",
			trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			object:   models.EntityTypeQuote,
			from:     "draft",
			to:       "accepted",
			expected: false,
		},
		{
			name:     "omitted from status matches any origin",
			trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			object:   models.EntityTypeQuote,
			from:     "expired",
			to:       "sent",
			expected: true,
		},
		{
			name: "from status pins the origin",
			trigger: models.TriggerCondition{
				ObjectType: models.EntityTypeQuote,
				FromStatus: statusPtr("draft"),
				ToStatus:   "sent",
			},
			object:   models.EntityTypeQuote,
			from:     "draft",
			to:       "sent",
			expected: true,
		},
		{
			name: "from status mismatch never matches",
			trigger: models.TriggerCondition{
				ObjectType: models.EntityTypeQuote,
				FromStatus: statusPtr("draft"),
				ToStatus:   "sent",
			},
			object:   models.EntityTypeQuote,
			from:     "expired",
			to:       "sent",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, TriggerMatches(tt.trigger, tt.object, tt.from, tt.to))
		})
	}
}

func TestMatcher_FindMatching(t *testing.T) {
	ctx := context.Background()
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))
	store := memory.NewPersistence()
	matcher := NewMatcher(store, logger)

	base := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	saved := []*models.WorkflowAutomation{
		{
			ID:       "auto-1",
			OrgID:    "org-1",
			Name:     "First",
			IsActive: true,
			Trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			Nodes:    []*models.AutomationNode{actionNode("n1", models.TargetSelf, "accepted", nil)},

			CreatedAt: base,
		},
		{
			ID:       "auto-2",
			OrgID:    "org-1",
			Name:     "Second",
			IsActive: true,
			Trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			Nodes:    []*models.AutomationNode{actionNode("n1", models.TargetSelf, "declined", nil)},

			CreatedAt: base.Add(time.Minute),
		},
		{
			ID:       "auto-3",
			OrgID:    "org-1",
			Name:     "Inactive",
			IsActive: false,
			Trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			Nodes:    []*models.AutomationNode{actionNode("n1", models.TargetSelf, "expired", nil)},

			CreatedAt: base.Add(2 * time.Minute),
		},
		{
			ID:       "auto-4",
			OrgID:    "org-2",
			Name:     "Other org",
			IsActive: true,
			Trigger:  models.TriggerCondition{ObjectType: models.EntityTypeQuote, ToStatus: "sent"},
			Nodes:    []*models.AutomationNode{actionNode("n1", models.TargetSelf, "accepted", nil)},

			CreatedAt: base.Add(3 * time.Minute),
		},
	}
	for _, automation := range saved {
		require.NoError(t, store.SaveAutomation(ctx, automation))
	}

	matches, err := matcher.FindMatching(ctx, "org-1", models.EntityTypeQuote, "draft", "sent")
	require.NoError(t, err)

	// Creation order, inactive and foreign-org automations excluded.
	require.Len(t, matches, 2)
	assert.Equal(t, "auto-1", matches[0].ID)
	assert.Equal(t, "auto-2", matches[1].ID)

	// Flipping isActive removes the automation from matching.
	require.NoError(t, store.SetAutomationActive(ctx, "org-1", "auto-1", false))

	matches, err = matcher.FindMatching(ctx, "org-1", models.EntityTypeQuote, "draft", "sent")
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "auto-2", matches[0].ID)
}
