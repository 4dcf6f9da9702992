package toolhandlers

import (
	"context"
	"encoding/json"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// manageGraphParams is the manage_graph tool's argument shape, per spec.md
// §4.9 item 4. The whole tool is an administrative operation set (spec.md
// §4.8's "manage_*"), so Handlers.Call already gates every call on it
// through Auth when admin_operations_require_auth is set; clear_graph
// additionally requires Confirm.
type manageGraphParams struct {
	Operation string   `json:"operation"`
	UUID      string   `json:"uuid"`
	UUIDs     []string `json:"uuids"`
	Confirm   bool     `json:"confirm"`
	Verbosity string   `json:"verbosity"`
}

func (h *Handlers) handleManageGraph(ctx context.Context, raw json.RawMessage) (any, error) {
	var p manageGraphParams
	if err := json.Unmarshal(raw, &p); err != nil {
		return nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed manage_graph arguments")
	}
	if err := validEnum("operation", p.Operation, "get", "delete_episode", "delete_edge", "delete_node", "batch_delete", "clear_graph"); err != nil {
		return nil, err
	}
	verbosity := parseVerbosity(p.Verbosity)

	switch p.Operation {
	case "get":
		return h.manageGet(ctx, p, verbosity)
	case "delete_episode":
		return h.manageDeleteOne(ctx, p.UUID, h.deps.Store.DeleteEpisode, "episode")
	case "delete_edge":
		return h.manageDeleteOne(ctx, p.UUID, h.deps.Store.DeleteEdge, "edge")
	case "delete_node":
		return h.manageDeleteOne(ctx, p.UUID, h.deps.Store.DeleteNode, "node")
	case "batch_delete":
		return h.manageBatchDelete(ctx, p)
	case "clear_graph":
		return h.manageClearGraph(ctx, p)
	default:
		return nil, graphtypes.Newf(graphtypes.KindInvalidParameters, "unsupported operation %q", p.Operation).WithField("operation")
	}
}

// manageGet fetches a single node, edge, or episode by UUID, trying each in
// turn since the tool does not take a record-type parameter.
func (h *Handlers) manageGet(ctx context.Context, p manageGraphParams, v Verbosity) (any, error) {
	id, err := parseUUIDField(p.UUID)
	if err != nil {
		return nil, err
	}

	if node, err := h.deps.Store.GetNode(ctx, id); err == nil {
		return map[string]any{"operation": "get", "kind": "node", "result": formatNode(*node, 1, v)}, nil
	}
	if edge, err := h.deps.Store.GetEdge(ctx, id); err == nil {
		return map[string]any{"operation": "get", "kind": "edge", "result": formatEdge(*edge, v)}, nil
	}
	if ep, err := h.deps.Store.GetEpisode(ctx, id); err == nil {
		return map[string]any{"operation": "get", "kind": "episode", "result": formatEpisode(*ep, v)}, nil
	}
	return nil, graphtypes.Newf(graphtypes.KindNotFound, "no node, edge, or episode with uuid %s", p.UUID).WithField("uuid")
}

func parseUUIDField(s string) (graphtypes.UUID, error) {
	if err := requireNonEmpty("uuid", s); err != nil {
		return graphtypes.Nil, err
	}
	id, err := graphtypes.ParseUUID(s)
	if err != nil {
		return graphtypes.Nil, graphtypes.Wrap(graphtypes.KindInvalidParameters, err, "malformed uuid").WithField("uuid")
	}
	return id, nil
}

func (h *Handlers) manageDeleteOne(ctx context.Context, uuidStr string, deleter func(context.Context, graphtypes.UUID) error, kind string) (any, error) {
	id, err := parseUUIDField(uuidStr)
	if err != nil {
		return nil, err
	}
	if err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		return deleter(ctx, id)
	}); err != nil {
		return nil, err
	}
	h.invalidateAfterDelete(id, kind)
	return map[string]any{"operation": "delete_" + kind, "uuid": id.String(), "deleted": true}, nil
}

// manageBatchDelete deletes a list of records whose kind is resolved per
// UUID by trying node, then edge, then episode, per spec.md §4.9's
// "get/delete single or batch" without a separate kind parameter. A single
// failure does not abort the batch; each result is reported individually.
func (h *Handlers) manageBatchDelete(ctx context.Context, p manageGraphParams) (any, error) {
	if len(p.UUIDs) == 0 {
		return nil, graphtypes.New(graphtypes.KindInvalidParameters, "batch_delete requires at least one uuid").WithField("uuids")
	}

	results := make([]map[string]any, 0, len(p.UUIDs))
	for _, raw := range p.UUIDs {
		id, err := graphtypes.ParseUUID(raw)
		if err != nil {
			results = append(results, map[string]any{"uuid": raw, "deleted": false, "error": "malformed uuid"})
			continue
		}
		kind, err := h.deleteByKind(ctx, id)
		if err != nil {
			results = append(results, map[string]any{"uuid": raw, "deleted": false, "error": err.Error()})
			continue
		}
		h.invalidateAfterDelete(id, kind)
		results = append(results, map[string]any{"uuid": raw, "deleted": true, "kind": kind})
	}
	return map[string]any{"operation": "batch_delete", "results": results}, nil
}

// deleteByKind tries node, then edge, then episode deletion, returning
// whichever kind matched.
func (h *Handlers) deleteByKind(ctx context.Context, id graphtypes.UUID) (string, error) {
	var lastErr error
	for _, c := range []struct {
		kind    string
		deleter func(context.Context, graphtypes.UUID) error
	}{
		{"node", h.deps.Store.DeleteNode},
		{"edge", h.deps.Store.DeleteEdge},
		{"episode", h.deps.Store.DeleteEpisode},
	} {
		err := h.withStorageBreaker(ctx, func(ctx context.Context) error { return c.deleter(ctx, id) })
		if err == nil {
			return c.kind, nil
		}
		if graphtypes.KindOf(err) != graphtypes.KindNotFound {
			return "", err
		}
		lastErr = err
	}
	return "", lastErr
}

// manageClearGraph wipes every table. Requires Confirm and (when auth is
// enabled) the API key, per spec.md §4.9 item 4; the key check already ran
// in Handlers.Call, which gates manage_graph whenever auth is enabled or
// admin_operations_require_auth is set.
func (h *Handlers) manageClearGraph(ctx context.Context, p manageGraphParams) (any, error) {
	if !p.Confirm {
		return nil, graphtypes.New(graphtypes.KindConflict, "clear_graph requires confirm=true").WithField("confirm")
	}
	if err := h.withStorageBreaker(ctx, func(ctx context.Context) error {
		return h.deps.Store.ClearAll(ctx)
	}); err != nil {
		return nil, err
	}
	if h.deps.Optimizer != nil {
		h.deps.Optimizer.InvalidateAll()
	}
	return map[string]any{"operation": "clear_graph", "cleared": true}, nil
}

func (h *Handlers) invalidateAfterDelete(id graphtypes.UUID, kind string) {
	if h.deps.Optimizer == nil {
		return
	}
	switch kind {
	case "node":
		h.deps.Optimizer.InvalidateNode(id)
	case "episode":
		h.deps.Optimizer.InvalidateEpisode(id)
	}
	h.deps.Optimizer.InvalidateQueryResults()
}
