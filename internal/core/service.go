package core

import (
	"context"
	"fmt"
	"slices"
	"time"

	"github.com/google/uuid"

	"github.com/agenthands/dsstrack/internal/core/common"
	"github.com/agenthands/dsstrack/internal/core/compose"
	"github.com/agenthands/dsstrack/internal/core/grouping"
	"github.com/agenthands/dsstrack/internal/core/model"
	"github.com/agenthands/dsstrack/internal/core/report"
	"github.com/agenthands/dsstrack/internal/core/review"
	"github.com/agenthands/dsstrack/internal/logger"
	"github.com/agenthands/dsstrack/internal/session"
	"github.com/agenthands/dsstrack/internal/tabular"
)

// VectorSource embeds a batch of texts, one vector per text.
type VectorSource interface {
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}

type Options struct {
	Separator        string
	DefaultThreshold float64
	PreviewRows      int
	MaxRows          int
}

func DefaultOptions() Options {
	return Options{
		Separator:        compose.DefaultSeparator,
		DefaultThreshold: 0.85,
		PreviewRows:      5,
	}
}

// Service runs the upload, analyze, review and export workflow over a
// session store.
type Service struct {
	Store    *session.Store
	Embedder VectorSource
	Grouper  *grouping.Grouper
	Options  Options
	Log      *logger.Logger

	UUIDGenerator func() string
	Now           func() time.Time
}

func NewService(store *session.Store, embedder VectorSource, opts Options, log *logger.Logger) *Service {
	if log == nil {
		log = logger.Nop()
	}
	return &Service{
		Store:         store,
		Embedder:      embedder,
		Grouper:       grouping.NewGrouper(),
		Options:       opts,
		Log:           log,
		UUIDGenerator: func() string { return uuid.New().String() },
		Now:           time.Now,
	}
}

type SessionInfo struct {
	SessionID string              `json:"session_id"`
	Filename  string              `json:"filename"`
	Rows      int                 `json:"rows"`
	Columns   []string            `json:"columns"`
	Preview   []map[string]string `json:"preview"`
}

// CreateSession parses an upload and registers it as a new session.
func (s *Service) CreateSession(ctx context.Context, filename string, data []byte) (*SessionInfo, error) {
	tbl, err := tabular.Read(filename, data, tabular.Options{MaxRows: s.Options.MaxRows})
	if err != nil {
		return nil, err
	}

	snap := &model.Snapshot{
		ID:        s.UUIDGenerator(),
		Filename:  filename,
		Columns:   tbl.Columns,
		Rows:      tbl.Rows,
		CreatedAt: s.Now().UTC(),
	}
	if err := s.Store.Create(ctx, snap); err != nil {
		return nil, err
	}
	s.Log.Info("session created", "session_id", snap.ID, "filename", filename, "rows", len(snap.Rows), "columns", len(snap.Columns))

	n := min(s.Options.PreviewRows, len(snap.Rows))
	preview := make([]map[string]string, n)
	for i := 0; i < n; i++ {
		preview[i] = snap.Rows[i].Values
	}
	return &SessionInfo{
		SessionID: snap.ID,
		Filename:  filename,
		Rows:      len(snap.Rows),
		Columns:   snap.Columns,
		Preview:   preview,
	}, nil
}

type AnalysisResult struct {
	SessionID                string                 `json:"session_id"`
	TotalRows                int                    `json:"total_rows"`
	Columns                  []string               `json:"columns"`
	IgnoredColumns           []string               `json:"ignored_columns,omitempty"`
	Threshold                float64                `json:"similarity_threshold"`
	DuplicateGroups          []model.DuplicateGroup `json:"groups"`
	TotalGroups              int                    `json:"duplicate_groups"`
	TotalPotentialDuplicates int                    `json:"total_potential_duplicates"`
	ReusedVectors            bool                   `json:"reused_vectors"`
}

// Analyze groups the session's rows by similarity of the selected columns.
// Any earlier groups and verdicts are replaced together. On failure the
// session keeps its previous analysis.
func (s *Service) Analyze(ctx context.Context, id string, columns []string, threshold float64) (*AnalysisResult, error) {
	if err := grouping.ValidateThreshold(threshold); err != nil {
		return nil, err
	}

	res := &AnalysisResult{SessionID: id, Threshold: threshold}
	_, err := s.Store.Update(ctx, id, func(cur *model.Snapshot) (*model.Snapshot, error) {
		selected, unknown := compose.Selection(columns, cur.HasColumn)
		if len(selected) == 0 {
			return nil, fmt.Errorf("%w: none of %q are columns of this upload", common.ErrInvalidSelection, columns)
		}
		if len(unknown) > 0 {
			s.Log.Warn("ignoring unknown columns", "session_id", id, "columns", unknown)
		}

		var vectors [][]float32
		if prev := cur.Analysis; prev != nil && slices.Equal(prev.Columns, selected) && len(prev.Vectors) == len(cur.Rows) {
			vectors = prev.Vectors
			res.ReusedVectors = true
		} else {
			var err error
			vectors, err = s.Embedder.EmbedBatch(ctx, compose.Texts(cur.Rows, selected, s.Options.Separator))
			if err != nil {
				return nil, err
			}
		}

		groups, err := s.Grouper.Group(cur.Rows, vectors, threshold)
		if err != nil {
			return nil, err
		}

		res.TotalRows = len(cur.Rows)
		res.Columns = selected
		res.IgnoredColumns = unknown
		res.DuplicateGroups = groups
		res.TotalGroups = len(groups)
		for _, g := range groups {
			res.TotalPotentialDuplicates += len(g.Members)
		}

		return cur.WithAnalysis(&model.Analysis{
			Columns:    selected,
			Threshold:  threshold,
			Vectors:    vectors,
			Groups:     groups,
			Verdicts:   map[string]bool{},
			AnalyzedAt: s.Now().UTC(),
		}), nil
	})
	if err != nil {
		s.Log.Warn("analysis failed", "session_id", id, "error", err)
		return nil, err
	}

	s.Log.Info("analysis complete", "session_id", id, "groups", res.TotalGroups, "threshold", threshold, "reused_vectors", res.ReusedVectors)
	return res, nil
}

type ReviewResult struct {
	SessionID   string              `json:"session_id"`
	DuplicateID string              `json:"duplicate_id"`
	IsDuplicate bool                `json:"is_duplicate"`
	Status      model.VerdictStatus `json:"status"`
	review.Counts
}

// Review records the verdict for one group. Repeating a verdict is a no-op
// and a later verdict for the same group replaces the earlier one.
func (s *Service) Review(ctx context.Context, id, duplicateID string, isDuplicate bool) (*ReviewResult, error) {
	next, err := s.Store.Update(ctx, id, func(cur *model.Snapshot) (*model.Snapshot, error) {
		if cur.Analysis == nil {
			return nil, fmt.Errorf("%w: %s", common.ErrSessionNotAnalyzed, id)
		}
		a, err := review.Record(cur.Analysis, duplicateID, isDuplicate)
		if err != nil {
			return nil, err
		}
		return cur.WithAnalysis(a), nil
	})
	if err != nil {
		return nil, err
	}

	s.Log.Debug("verdict recorded", "session_id", id, "duplicate_id", duplicateID, "is_duplicate", isDuplicate)
	return &ReviewResult{
		SessionID:   id,
		DuplicateID: duplicateID,
		IsDuplicate: isDuplicate,
		Status:      next.Analysis.Status(duplicateID),
		Counts:      review.Tally(next.Analysis),
	}, nil
}

// Pending lists groups still awaiting a verdict, in group order.
func (s *Service) Pending(ctx context.Context, id string) ([]string, error) {
	var out []string
	err := s.Store.View(ctx, id, func(cur *model.Snapshot) error {
		if cur.Analysis == nil {
			return fmt.Errorf("%w: %s", common.ErrSessionNotAnalyzed, id)
		}
		out = review.Pending(cur.Analysis)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

type GroupStatus struct {
	model.DuplicateGroup
	Status model.VerdictStatus `json:"status"`
}

type SessionStatus struct {
	SessionID  string        `json:"session_id"`
	Filename   string        `json:"filename"`
	TotalRows  int           `json:"total_rows"`
	Columns    []string      `json:"columns"`
	CreatedAt  time.Time     `json:"created_at"`
	Analyzed   bool          `json:"analyzed"`
	Selected   []string      `json:"selected_columns,omitempty"`
	Threshold  float64       `json:"similarity_threshold,omitempty"`
	AnalyzedAt *time.Time    `json:"analyzed_at,omitempty"`
	Groups     []GroupStatus `json:"groups,omitempty"`
	Pending    []string      `json:"pending_ids"`

	GroupCount    int `json:"duplicate_groups"`
	Reviewed      int `json:"reviewed"`
	PendingReview int `json:"pending_review"`
	Confirmed     int `json:"confirmed"`
	Rejected      int `json:"rejected"`
}

// Status describes a session, including its groups and their verdicts once
// analyzed.
func (s *Service) Status(ctx context.Context, id string) (*SessionStatus, error) {
	var st *SessionStatus
	err := s.Store.View(ctx, id, func(cur *model.Snapshot) error {
		st = &SessionStatus{
			SessionID: cur.ID,
			Filename:  cur.Filename,
			TotalRows: len(cur.Rows),
			Columns:   cur.Columns,
			CreatedAt: cur.CreatedAt,
			Pending:   []string{},
		}
		a := cur.Analysis
		if a == nil {
			return nil
		}
		at := a.AnalyzedAt
		st.Analyzed = true
		st.Selected = a.Columns
		st.Threshold = a.Threshold
		st.AnalyzedAt = &at
		n := review.Tally(a)
		st.GroupCount = n.Total
		st.Reviewed = n.Reviewed
		st.PendingReview = n.Pending
		st.Confirmed = n.Confirmed
		st.Rejected = n.Rejected
		if p := review.Pending(a); p != nil {
			st.Pending = p
		}
		st.Groups = make([]GroupStatus, len(a.Groups))
		for i, g := range a.Groups {
			st.Groups[i] = GroupStatus{DuplicateGroup: g, Status: a.Status(g.DuplicateID)}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return st, nil
}

type Export struct {
	Report      *report.Report
	Filename    string
	ContentType string
	Data        []byte
}

// Export builds the report for an analyzed session and renders it as a
// workbook.
func (s *Service) Export(ctx context.Context, id string) (*Export, error) {
	var out *Export
	err := s.Store.View(ctx, id, func(cur *model.Snapshot) error {
		rep, err := report.Build(cur)
		if err != nil {
			return fmt.Errorf("%w: %s", err, id)
		}
		data, err := tabular.WriteReport(rep)
		if err != nil {
			return fmt.Errorf("render report: %w", err)
		}
		out = &Export{
			Report:      rep,
			Filename:    tabular.ReportFilename(cur.Filename),
			ContentType: tabular.ContentType,
			Data:        data,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Log.Info("report exported", "session_id", id, "rows_removed", out.Report.Summary.RowsRemoved)
	return out, nil
}

// Reset destroys a session.
func (s *Service) Reset(ctx context.Context, id string) error {
	if err := s.Store.Delete(ctx, id); err != nil {
		return err
	}
	s.Log.Info("session deleted", "session_id", id)
	return nil
}
