package repository

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vfg2006/audience-delivery-api/internal/domain"
)

func TestValidateFields(t *testing.T) {
	t.Run("accepts whitelisted audience fields", func(t *testing.T) {
		err := validateFields(CollectionAudiences, map[string]any{
			"name": "High spenders",
			"filters": []map[string]any{
				{"aggregator": "ALL", "rules": []map[string]any{
					{"field": "total_spend", "operator": "gt", "value": 500},
				}},
			},
		}, true)
		assert.NoError(t, err)
	})

	t.Run("rejects unknown fields", func(t *testing.T) {
		err := validateFields(CollectionAudiences, map[string]any{
			"name":     "A",
			"nickname": "not a real field",
		}, true)

		require.Error(t, err)
		assert.ErrorIs(t, err, ErrInvalidField)

		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, []string{"nickname"}, fieldErr.Fields)
		assert.Equal(t, CollectionAudiences, fieldErr.Collection)
	})

	t.Run("metadata keys are never valid fields", func(t *testing.T) {
		err := validateFields(CollectionAudiences, map[string]any{
			"name": "A",
			"id":   "sneaky",
		}, true)
		assert.ErrorIs(t, err, ErrInvalidField)
	})

	t.Run("requires create fields only on create", func(t *testing.T) {
		fields := map[string]any{"size": int64(10)}

		err := validateFields(CollectionAudiences, fields, true)
		require.Error(t, err)
		assert.ErrorIs(t, err, ErrMissingRequiredField)

		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.Equal(t, []string{"name"}, fieldErr.Fields)

		// Update path: partial documents are fine
		assert.NoError(t, validateFields(CollectionAudiences, fields, false))
	})

	t.Run("reports every missing required field", func(t *testing.T) {
		err := validateFields(CollectionDeliveryJobs, map[string]any{
			"audience_id": "A1",
		}, true)

		var fieldErr *FieldError
		require.ErrorAs(t, err, &fieldErr)
		assert.ElementsMatch(t, []string{"destination_id", "status"}, fieldErr.Fields)
	})

	t.Run("rejects unsupported collections", func(t *testing.T) {
		err := validateFields("customers", map[string]any{"name": "x"}, true)
		assert.ErrorIs(t, err, ErrUnsupportedCollection)
	})

	t.Run("decodes nested engagement references", func(t *testing.T) {
		err := validateFields(CollectionEngagements, map[string]any{
			"name": "Summer push",
			"audiences": []map[string]any{
				{
					"id": "A1",
					"destinations": []map[string]any{
						{"id": "D1", "delivery_schedule": "0 0 8 */1 * *", "replace_audience": true},
					},
					"delivery_schedule": map[string]any{
						"periodicity": "Daily",
						"every":       1,
						"hour":        8,
						"minute":      0,
						"period":      "AM",
					},
				},
			},
		}, true)
		assert.NoError(t, err)
	})

	t.Run("accepts RFC3339 strings for time fields", func(t *testing.T) {
		err := validateFields(CollectionDeliveryJobs, map[string]any{
			"audience_id":    "A1",
			"destination_id": "D1",
			"status":         domain.JobInProgress,
			"start_time":     time.Now().UTC().Format(timeLayout),
		}, true)
		assert.NoError(t, err)
	})
}

func TestDecodeDocument(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)

	doc := Document{
		"id":             "J1",
		"audience_id":    "A1",
		"destination_id": "D1",
		"status":         "Succeeded",
		"size":           float64(1200), // numbers come back as float64 from JSONB
		"create_time":    now.Format(timeLayout),
		"update_time":    now,
	}

	job := &domain.DeliveryJob{}
	require.NoError(t, DecodeDocument(doc, job))

	assert.Equal(t, "J1", job.ID)
	assert.Equal(t, domain.JobSucceeded, job.Status)
	assert.Equal(t, int64(1200), job.Size)
	assert.Equal(t, now, job.CreateTime)
	assert.Equal(t, now, job.UpdateTime)
}

func TestSortExpression(t *testing.T) {
	t.Run("metadata keys map to columns", func(t *testing.T) {
		expr, err := sortExpression(FieldCreateTime, true)
		require.NoError(t, err)
		assert.Equal(t, "create_time DESC", expr)
	})

	t.Run("document fields map to JSONB access", func(t *testing.T) {
		expr, err := sortExpression("name", false)
		require.NoError(t, err)
		assert.Equal(t, "fields->>'name' ASC", expr)
	})

	t.Run("defaults to create_time", func(t *testing.T) {
		expr, err := sortExpression("", false)
		require.NoError(t, err)
		assert.Equal(t, "create_time ASC", expr)
	})

	t.Run("rejects injection attempts", func(t *testing.T) {
		_, err := sortExpression("name'; DROP TABLE documents; --", false)
		assert.ErrorIs(t, err, ErrInvalidField)
	})
}

func TestProject(t *testing.T) {
	doc := Document{
		"id":     "A1",
		"name":   "High spenders",
		"size":   int64(10),
		"secret": "x",
	}

	out := project(doc, []string{"name"})

	assert.Equal(t, "A1", out["id"]) // id always survives
	assert.Equal(t, "High spenders", out["name"])
	assert.NotContains(t, out, "size")
	assert.NotContains(t, out, "secret")
}
