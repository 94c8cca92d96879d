package worker

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/ppiankov/riskwatch/internal/model"
	"github.com/ppiankov/riskwatch/internal/pipeline"
)

// maxLineBytes bounds one JSONL line; text submissions may be large
const maxLineBytes = 8 << 20

// Analyzer runs one submission
type Analyzer interface {
	Analyze(ctx context.Context, sub model.Submission) (*pipeline.Result, error)
}

// Item is one parsed line of a batch file
type Item struct {
	Line       int
	Submission model.Submission
	Err        error // Set when the line could not be decoded
}

// AnalyzeJob analyzes one batch item
type AnalyzeJob struct {
	index    int
	item     Item
	analyzer Analyzer
	limiter  *Limiter
}

// Index returns the job's position in the batch
func (j *AnalyzeJob) Index() int { return j.index }

// Execute runs the analysis, waiting on the limiter first if one is set
func (j *AnalyzeJob) Execute(ctx context.Context) Result {
	res := &BatchResult{index: j.index, Line: j.item.Line, Kind: j.item.Submission.Kind}
	if j.item.Err != nil {
		res.setError(j.item.Err)
		return res
	}
	if j.limiter != nil {
		if err := j.limiter.Wait(ctx, "batch"); err != nil {
			res.setError(err)
			return res
		}
	}

	out, err := j.analyzer.Analyze(ctx, j.item.Submission)
	if err != nil {
		res.setError(err)
		return res
	}
	res.Result = out
	return res
}

// BatchResult is the outcome for one line of a batch
type BatchResult struct {
	index int
	err   error

	Line   int               `json:"line"`
	Kind   model.SubjectKind `json:"kind,omitempty"`
	Result *pipeline.Result  `json:"result,omitempty"`
	Error  string            `json:"error,omitempty"`
}

func (r *BatchResult) setError(err error) {
	r.err = err
	r.Error = err.Error()
}

// Index returns the result's position in the batch
func (r *BatchResult) Index() int { return r.index }

// GetError returns the analysis error, if any
func (r *BatchResult) GetError() error { return r.err }

// BatchProcessor analyzes many submissions concurrently
type BatchProcessor struct {
	analyzer    Analyzer
	concurrency int
	limiter     *Limiter
}

// NewBatchProcessor creates a batch processor. requestsPerSecond <= 0
// disables throttling.
func NewBatchProcessor(analyzer Analyzer, concurrency int, requestsPerSecond float64, burst int) *BatchProcessor {
	b := &BatchProcessor{
		analyzer:    analyzer,
		concurrency: concurrency,
	}
	if requestsPerSecond > 0 {
		b.limiter = NewLimiter(requestsPerSecond, burst)
	}
	return b
}

// Process analyzes items and returns one result per item, in input order.
// Items skipped because ctx was canceled are reported with ctx's error.
func (b *BatchProcessor) Process(ctx context.Context, items []Item) []*BatchResult {
	if len(items) == 0 {
		return []*BatchResult{}
	}

	jobs := make([]Job, len(items))
	for i, item := range items {
		jobs[i] = &AnalyzeJob{index: i, item: item, analyzer: b.analyzer, limiter: b.limiter}
	}

	results := Run(ctx, b.concurrency, jobs)

	out := make([]*BatchResult, len(items))
	for _, r := range results {
		out[r.Index()] = r.(*BatchResult)
	}
	for i, r := range out {
		if r == nil {
			r = &BatchResult{index: i, Line: items[i].Line, Kind: items[i].Submission.Kind}
			err := ctx.Err()
			if err == nil {
				err = fmt.Errorf("not processed")
			}
			r.setError(err)
			out[i] = r
		}
	}
	return out
}

// ProcessReader reads JSONL submissions from r and analyzes them
func (b *BatchProcessor) ProcessReader(ctx context.Context, r io.Reader) ([]*BatchResult, error) {
	items, err := ReadSubmissions(r)
	if err != nil {
		return nil, err
	}
	return b.Process(ctx, items), nil
}

// ProcessFile reads JSONL submissions from a file and analyzes them
func (b *BatchProcessor) ProcessFile(ctx context.Context, filePath string) ([]*BatchResult, error) {
	file, err := os.Open(filePath)
	if err != nil {
		return nil, fmt.Errorf("open file: %w", err)
	}
	defer func() { _ = file.Close() }()

	return b.ProcessReader(ctx, file)
}

// ReadSubmissions parses JSONL: one submission object per line. Blank lines
// and lines starting with # are skipped. A line that does not decode becomes
// an Item carrying an InvalidInputError so the batch reports it in place.
func ReadSubmissions(r io.Reader) ([]Item, error) {
	var items []Item

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxLineBytes)
	lineNo := 0
	for scanner.Scan() {
		lineNo++
		line := bytes.TrimSpace(scanner.Bytes())

		// Skip empty lines and comments
		if len(line) == 0 || line[0] == '#' {
			continue
		}

		var sub model.Submission
		dec := json.NewDecoder(bytes.NewReader(line))
		dec.DisallowUnknownFields()
		if err := dec.Decode(&sub); err != nil {
			items = append(items, Item{
				Line: lineNo,
				Err:  model.NewInvalidInput(fmt.Sprintf("line %d", lineNo), err.Error()),
			})
			continue
		}
		InferKind(&sub)
		items = append(items, Item{Line: lineNo, Submission: sub})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scan submissions: %w", err)
	}
	return items, nil
}

// InferKind fills an empty Kind from the populated fields
func InferKind(sub *model.Submission) {
	sub.Kind = model.SubjectKind(strings.ToLower(strings.TrimSpace(string(sub.Kind))))
	if sub.Kind != "" {
		return
	}
	switch {
	case sub.Text != "":
		sub.Kind = model.KindText
	case sub.URL != "":
		sub.Kind = model.KindURL
	case sub.Name != "" || sub.RegistrationNumber != "":
		sub.Kind = model.KindAdvisor
	}
}

// Summary counts batch outcomes
type Summary struct {
	Total   int                     `json:"total"`
	Failed  int                     `json:"failed"`
	Cached  int                     `json:"cached"`
	ByLevel map[model.RiskLevel]int `json:"by_level"`
}

// Summarize counts results by outcome and risk level
func Summarize(results []*BatchResult) Summary {
	s := Summary{Total: len(results), ByLevel: make(map[model.RiskLevel]int)}
	for _, r := range results {
		if r.err != nil || r.Result == nil {
			s.Failed++
			continue
		}
		if r.Result.Cached {
			s.Cached++
		}
		s.ByLevel[r.Result.Assessment.RiskLevel]++
	}
	return s
}
