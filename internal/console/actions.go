package console

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/keydeck/keydeck/internal/backend"
	"github.com/keydeck/keydeck/internal/telemetry"
)

// Messages for client-side validation failures.
const (
	msgKeyFieldsRequired = "Please fill in the key name and value"
	msgModelNameRequired = "Please enter a model name"
)

// failure turns a backend error into a danger toast prefixed with what
// failed. ErrUnauthorized propagates instead.
func failure(prefix string, err error) (Feedback, error) {
	msg, err := fold(err)
	if err != nil {
		return Feedback{}, err
	}
	return Feedback{Toast: danger(prefix + ": " + msg)}, nil
}

func normalizeStatus(s string) string {
	switch s {
	case backend.StatusActive, backend.StatusInactive, backend.StatusError:
		return s
	}
	return backend.StatusActive
}

// SaveKey creates a key. Name and value must be non-empty; otherwise no
// request is made.
func (c *Controller) SaveKey(ctx context.Context, form KeyForm) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.SaveKey")
	defer span.End()

	name, value := strings.TrimSpace(form.Name), strings.TrimSpace(form.Value)
	if name == "" || value == "" {
		c.rejected("key.create", name, msgKeyFieldsRequired)
		return Feedback{Toast: warning(msgKeyFieldsRequired)}, nil
	}

	start := time.Now()
	err := c.api.CreateKey(ctx, backend.KeyInput{Name: name, KeyValue: value, Status: normalizeStatus(form.Status)})
	c.record("key.create", name, start, err)
	if err != nil {
		return failure("Failed to add key", err)
	}
	return Feedback{Toast: success("Key added"), CloseModal: true, Reload: []string{reloadKeys}}, nil
}

// EditKey fetches a key to prefill the edit modal. On failure the form is
// nil and the feedback carries the error toast.
func (c *Controller) EditKey(ctx context.Context, id int64) (*KeyForm, Feedback, error) {
	k, err := c.api.GetKey(ctx, id)
	if err != nil {
		fb, err := failure("Failed to load key", err)
		return nil, fb, err
	}
	return &KeyForm{ID: k.ID, Name: k.Name, Value: k.KeyValue, Status: normalizeStatus(k.Status)}, Feedback{}, nil
}

// UpdateKey saves an edited key.
func (c *Controller) UpdateKey(ctx context.Context, form KeyForm) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.UpdateKey")
	defer span.End()

	target := strconv.FormatInt(form.ID, 10)
	name, value := strings.TrimSpace(form.Name), strings.TrimSpace(form.Value)
	if name == "" || value == "" {
		c.rejected("key.update", target, msgKeyFieldsRequired)
		return Feedback{Toast: warning(msgKeyFieldsRequired)}, nil
	}

	start := time.Now()
	err := c.api.UpdateKey(ctx, form.ID, backend.KeyInput{Name: name, KeyValue: value, Status: normalizeStatus(form.Status)})
	c.record("key.update", target, start, err)
	if err != nil {
		return failure("Failed to update key", err)
	}
	return Feedback{Toast: success("Key updated"), CloseModal: true, Reload: []string{reloadKeys}}, nil
}

// DeleteKey removes a key. Without confirmation nothing happens.
func (c *Controller) DeleteKey(ctx context.Context, id int64, confirmed bool) (Feedback, error) {
	target := strconv.FormatInt(id, 10)
	if !confirmed {
		c.rejected("key.delete", target, "not confirmed")
		return Feedback{}, nil
	}

	ctx, span := telemetry.Start(ctx, "console.DeleteKey")
	defer span.End()

	start := time.Now()
	err := c.api.DeleteKey(ctx, id)
	c.record("key.delete", target, start, err)
	if err != nil {
		return failure("Failed to delete key", err)
	}
	return Feedback{Toast: success("Key deleted"), Reload: []string{reloadKeys}}, nil
}

// TestKey asks the backend to validate a key upstream. The keys table is
// reloaded either way since the test may change the key's status.
func (c *Controller) TestKey(ctx context.Context, id int64) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.TestKey")
	defer span.End()

	target := strconv.FormatInt(id, 10)
	start := time.Now()
	res, err := c.api.TestKey(ctx, id)
	if err != nil {
		c.record("key.test", target, start, err)
		return failure("Key test failed", err)
	}
	if !res.Valid {
		c.recordOutcome("key.test", target, "failed", res.Message, time.Since(start))
		msg := "Key test failed"
		if res.Message != "" {
			msg += ": " + res.Message
		}
		return Feedback{Toast: danger(msg), Reload: []string{reloadKeys}}, nil
	}
	c.record("key.test", target, start, nil)
	return Feedback{Toast: success("Key test passed"), Reload: []string{reloadKeys}}, nil
}

// SaveModel creates a model. The name must be non-empty.
func (c *Controller) SaveModel(ctx context.Context, form ModelForm) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.SaveModel")
	defer span.End()

	name := strings.TrimSpace(form.Name)
	if name == "" {
		c.rejected("model.create", "", msgModelNameRequired)
		return Feedback{Toast: warning(msgModelNameRequired)}, nil
	}

	start := time.Now()
	err := c.api.CreateModel(ctx, backend.ModelInput{
		ModelName:    name,
		Description:  strings.TrimSpace(form.Description),
		Capabilities: strings.TrimSpace(form.Capabilities),
	})
	c.record("model.create", name, start, err)
	if err != nil {
		return failure("Failed to add model", err)
	}
	return Feedback{Toast: success("Model added"), CloseModal: true, Reload: []string{reloadModels}}, nil
}

// EditModel fetches a model to prefill the edit modal.
func (c *Controller) EditModel(ctx context.Context, name string) (*ModelForm, Feedback, error) {
	m, err := c.api.GetModel(ctx, name)
	if err != nil {
		fb, err := failure("Failed to load model", err)
		return nil, fb, err
	}
	return &ModelForm{Name: m.ModelName, Description: m.Description, Capabilities: m.Capabilities}, Feedback{}, nil
}

// UpdateModel saves an edited model. The name identifies the model and is
// not itself editable.
func (c *Controller) UpdateModel(ctx context.Context, form ModelForm) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.UpdateModel")
	defer span.End()

	name := strings.TrimSpace(form.Name)
	if name == "" {
		c.rejected("model.update", "", msgModelNameRequired)
		return Feedback{Toast: warning(msgModelNameRequired)}, nil
	}

	start := time.Now()
	err := c.api.UpdateModel(ctx, name, backend.ModelInput{
		Description:  strings.TrimSpace(form.Description),
		Capabilities: strings.TrimSpace(form.Capabilities),
	})
	c.record("model.update", name, start, err)
	if err != nil {
		return failure("Failed to update model", err)
	}
	return Feedback{Toast: success("Model updated"), CloseModal: true, Reload: []string{reloadModels}}, nil
}

// DeleteModel removes a model. Without confirmation nothing happens.
func (c *Controller) DeleteModel(ctx context.Context, name string, confirmed bool) (Feedback, error) {
	if !confirmed {
		c.rejected("model.delete", name, "not confirmed")
		return Feedback{}, nil
	}

	ctx, span := telemetry.Start(ctx, "console.DeleteModel")
	defer span.End()

	start := time.Now()
	err := c.api.DeleteModel(ctx, name)
	c.record("model.delete", name, start, err)
	if err != nil {
		return failure("Failed to delete model", err)
	}
	return Feedback{Toast: success("Model deleted"), Reload: []string{reloadModels}}, nil
}

// RefreshModels re-fetches the model list from upstream.
func (c *Controller) RefreshModels(ctx context.Context) (Feedback, error) {
	ctx, span := telemetry.Start(ctx, "console.RefreshModels")
	defer span.End()

	start := time.Now()
	models, err := c.api.RefreshModels(ctx)
	c.record("model.refresh", "", start, err)
	if err != nil {
		return failure("Failed to refresh models", err)
	}
	msg := "Model list refreshed (" + strconv.Itoa(len(models)) + " models)"
	return Feedback{Toast: success(msg), Reload: []string{reloadModels, reloadChatModels}}, nil
}
