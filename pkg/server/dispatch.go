package server

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/widyatma/loratag/pkg/hub"
	"github.com/widyatma/loratag/pkg/tags"
	"github.com/widyatma/loratag/pkg/workqueue"
)

// handlerFunc processes one inbound envelope against the application
// context. Handlers have no transport access: they return the direct reply
// for the sender plus any envelopes to fan out to every connection. All
// broadcast I/O happens after the handler returns, outside any store lock.
type handlerFunc func(ctx context.Context, a *App, data map[string]interface{}) (reply *hub.Envelope, broadcasts []hub.Envelope)

// dispatchTable maps every client-originated message type to its handler.
// The table is the single routing point; the type set is closed.
var dispatchTable = map[hub.MessageType]handlerFunc{
	hub.TypePing:        handlePing,
	hub.TypeGetImage:    handleGetImage,
	hub.TypeUpdateTags:  handleUpdateTags,
	hub.TypeSaveSession: handleSaveSession,
	hub.TypeGetTags:     handleGetTags,
	hub.TypeAddTag:      handleAddTag,
	hub.TypeDeleteTag:   handleDeleteTag,
}

// Dispatch routes one inbound envelope. An unknown type yields an error
// envelope for the sender only; the connection stays open.
func (a *App) Dispatch(ctx context.Context, env hub.Envelope) (*hub.Envelope, []hub.Envelope) {
	handler, ok := dispatchTable[env.Type]
	if !ok {
		reply := hub.ErrorEnvelope(fmt.Sprintf("unknown message type: %s", env.Type))
		return &reply, nil
	}
	return handler(ctx, a, env.Data)
}

func handlePing(context.Context, *App, map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	return &hub.Envelope{Type: hub.TypePong}, nil
}

// SessionStateEnvelope builds the full-state push sent to every new
// connection and after batch processing. It works from a snapshot; no lock is
// held while the envelope is delivered.
func (a *App) SessionStateEnvelope() hub.Envelope {
	snap := a.store.Snapshot()
	return hub.Envelope{
		Type: hub.TypeSessionState,
		Data: map[string]interface{}{
			"total_images":     a.ImageCount(),
			"processed_images": snap.Stats.ProcessedImages,
			"current_position": snap.CurrentPosition,
			"tags":             snap.Tags,
			"last_updated":     snap.LastUpdated,
		},
	}
}

func handleGetImage(ctx context.Context, a *App, data map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	index, ok := intField(data, "index")
	if !ok {
		reply := hub.ErrorEnvelope("get_image requires an integer index")
		return &reply, nil
	}

	original, ok := a.imageAt(index)
	if !ok {
		reply := hub.ErrorEnvelope(fmt.Sprintf("image index out of range: %d", index))
		return &reply, nil
	}

	// Images are processed lazily on first view, so navigating is what pulls
	// an image through the pipeline.
	if err := a.processImage(ctx, original); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to process image: %v", err))
		return &reply, nil
	}

	dest, tagPath, ok := a.imagePaths(original)
	if !ok {
		reply := hub.ErrorEnvelope("image has no recorded destination")
		return &reply, nil
	}

	imageTags, err := tags.LoadImageTags(tagPath)
	if err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to load image tags: %v", err))
		return &reply, nil
	}

	name := filepath.Base(dest)
	a.store.SetCurrentPosition(&name)

	reply := hub.Envelope{
		Type: hub.TypeImageData,
		Data: map[string]interface{}{
			"index":    index,
			"total":    a.ImageCount(),
			"filename": name,
			"original": original,
			"tags":     imageTags,
		},
	}
	return &reply, nil
}

func handleUpdateTags(ctx context.Context, a *App, data map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	index, ok := intField(data, "index")
	if !ok {
		reply := hub.ErrorEnvelope("update_tags requires an integer index")
		return &reply, nil
	}
	rawTags, ok := stringSliceField(data, "tags")
	if !ok {
		reply := hub.ErrorEnvelope("update_tags requires a tags array")
		return &reply, nil
	}

	original, ok := a.imageAt(index)
	if !ok {
		reply := hub.ErrorEnvelope(fmt.Sprintf("image index out of range: %d", index))
		return &reply, nil
	}
	if err := a.processImage(ctx, original); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to process image: %v", err))
		return &reply, nil
	}
	_, tagPath, ok := a.imagePaths(original)
	if !ok {
		reply := hub.ErrorEnvelope("image has no recorded destination")
		return &reply, nil
	}

	var clean []string
	for _, tag := range rawTags {
		clean = tags.Add(clean, tag)
	}

	if _, err := a.queue.EnqueueWithContext(ctx, workqueue.LaneDisk, func(context.Context) (interface{}, error) {
		return nil, tags.SaveImageTags(tagPath, clean)
	}); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to save tags: %v", err))
		return &reply, nil
	}

	broadcasts := []hub.Envelope{{
		Type: hub.TypeImageTagsUpdate,
		Data: map[string]interface{}{"index": index, "tags": clean},
	}}

	// New vocabulary discovered on an image flows into the master list.
	if updated, changed := a.mergeIntoMaster(ctx, clean); changed {
		broadcasts = append(broadcasts, hub.Envelope{
			Type: hub.TypeMasterTagsUpdate,
			Data: map[string]interface{}{"tags": updated},
		})
	}

	reply := hub.Envelope{
		Type: hub.TypeTagsUpdated,
		Data: map[string]interface{}{"index": index, "tags": clean},
	}
	return &reply, broadcasts
}

func handleSaveSession(ctx context.Context, a *App, _ map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	if err := a.saveSession(ctx, true); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to save session: %v", err))
		return &reply, nil
	}
	reply := hub.Envelope{
		Type: hub.TypeSessionSaved,
		Data: map[string]interface{}{"path": a.store.Path()},
	}
	return &reply, nil
}

func handleGetTags(_ context.Context, a *App, _ map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	reply := hub.Envelope{
		Type: hub.TypeTagsList,
		Data: map[string]interface{}{"tags": a.store.Snapshot().Tags},
	}
	return &reply, nil
}

func handleAddTag(ctx context.Context, a *App, data map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	raw, ok := stringField(data, "tag")
	if !ok {
		reply := hub.ErrorEnvelope("add_tag requires a tag")
		return &reply, nil
	}

	tag := tags.Normalize(raw)
	if tag == "" {
		reply := hub.ErrorEnvelope("tag is empty after normalization")
		return &reply, nil
	}

	master := a.store.Snapshot().Tags
	if containsString(master, tag) {
		reply := hub.Envelope{
			Type: hub.TypeTagExists,
			Data: map[string]interface{}{"tag": tag},
		}
		return &reply, nil
	}

	updated := tags.Add(master, tag)
	if err := a.persistMaster(ctx, updated); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to save tags: %v", err))
		return &reply, nil
	}

	reply := hub.Envelope{
		Type: hub.TypeTagAdded,
		Data: map[string]interface{}{"tag": tag},
	}
	broadcasts := []hub.Envelope{
		{Type: hub.TypeTagUpdate, Data: map[string]interface{}{"action": "added", "tag": tag}},
		{Type: hub.TypeMasterTagsUpdate, Data: map[string]interface{}{"tags": updated}},
	}
	return &reply, broadcasts
}

func handleDeleteTag(ctx context.Context, a *App, data map[string]interface{}) (*hub.Envelope, []hub.Envelope) {
	raw, ok := stringField(data, "tag")
	if !ok {
		reply := hub.ErrorEnvelope("delete_tag requires a tag")
		return &reply, nil
	}

	tag := tags.Normalize(raw)
	master := a.store.Snapshot().Tags
	if !containsString(master, tag) {
		reply := hub.Envelope{
			Type: hub.TypeTagNotFound,
			Data: map[string]interface{}{"tag": tag},
		}
		return &reply, nil
	}

	updated := tags.Remove(master, tag)
	if err := a.persistMaster(ctx, updated); err != nil {
		reply := hub.ErrorEnvelope(fmt.Sprintf("failed to save tags: %v", err))
		return &reply, nil
	}

	reply := hub.Envelope{
		Type: hub.TypeTagDeleted,
		Data: map[string]interface{}{"tag": tag},
	}
	broadcasts := []hub.Envelope{
		{Type: hub.TypeTagUpdate, Data: map[string]interface{}{"action": "deleted", "tag": tag}},
		{Type: hub.TypeMasterTagsUpdate, Data: map[string]interface{}{"tags": updated}},
	}
	return &reply, broadcasts
}

// persistMaster writes the master tag file on the disk lane and mirrors the
// list into the session record.
func (a *App) persistMaster(ctx context.Context, list []string) error {
	if _, err := a.queue.EnqueueWithContext(ctx, workqueue.LaneDisk, func(context.Context) (interface{}, error) {
		return nil, tags.SaveFile(a.cfg.MasterTagsPath(), list)
	}); err != nil {
		return err
	}
	a.store.UpdateTags(list)
	return nil
}

// mergeIntoMaster adds any unseen tags to the master list. Returns the
// resulting list and whether anything changed.
func (a *App) mergeIntoMaster(ctx context.Context, incoming []string) ([]string, bool) {
	master := a.store.Snapshot().Tags
	updated := master
	for _, tag := range incoming {
		updated = tags.Add(updated, tag)
	}
	if len(updated) == len(master) {
		return master, false
	}
	if err := a.persistMaster(ctx, updated); err != nil {
		a.logger.Error().Err(err).Msg("Failed to persist master tags")
		return master, false
	}
	return updated, true
}

func intField(data map[string]interface{}, key string) (int, bool) {
	switch v := data[key].(type) {
	case float64:
		return int(v), true
	case int:
		return v, true
	default:
		return 0, false
	}
}

func stringField(data map[string]interface{}, key string) (string, bool) {
	s, ok := data[key].(string)
	return s, ok
}

func stringSliceField(data map[string]interface{}, key string) ([]string, bool) {
	raw, ok := data[key].([]interface{})
	if !ok {
		// Already-typed slices appear in offline callers.
		if typed, tok := data[key].([]string); tok {
			return typed, true
		}
		return nil, false
	}

	out := make([]string, 0, len(raw))
	for _, item := range raw {
		s, sok := item.(string)
		if !sok {
			return nil, false
		}
		out = append(out, s)
	}
	return out, true
}
