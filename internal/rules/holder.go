package rules

import (
	"sync/atomic"

	"go.uber.org/zap"
)

// Holder owns the active table. Reload builds the new table completely before
// swapping it in, so readers see either the old table or the new one.
type Holder struct {
	source  *Source
	current atomic.Pointer[Table]
	logger  *zap.Logger
}

// NewHolder loads the initial table from source.
func NewHolder(source *Source, logger *zap.Logger) (*Holder, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	h := &Holder{source: source, logger: logger}
	table, err := source.Load()
	if err != nil {
		return nil, err
	}
	h.current.Store(table)
	return h, nil
}

// Table returns the active table.
func (h *Holder) Table() *Table {
	return h.current.Load()
}

// Source returns the backing source.
func (h *Holder) Source() *Source {
	return h.source
}

// Reload re-reads the source. On failure the active table is kept.
func (h *Holder) Reload() (*Table, error) {
	table, err := h.source.Load()
	if err != nil {
		h.logger.Error("Rules reload failed, keeping previous table", zap.Error(err))
		return h.Table(), err
	}
	previous := h.current.Swap(table)

	h.logger.Info("Rules reloaded",
		zap.Int("previous_rules", previous.Len()),
		zap.Int("rules", table.Len()))

	return table, nil
}

// Replace persists table through the source and makes it active.
func (h *Holder) Replace(table *Table) error {
	if err := h.source.Save(table); err != nil {
		return err
	}
	h.current.Store(table)
	return nil
}
