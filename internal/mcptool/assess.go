// Package mcptool exposes the assessment pipeline as Model Context Protocol
// tools so that MCP-capable clients can request articulation assessments and
// retrieve stored reports.
package mcptool

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/aneeshram/artivox/internal/analysis"
	"github.com/aneeshram/artivox/internal/profile"
	"github.com/aneeshram/artivox/internal/report"
	"github.com/aneeshram/artivox/pkg/audio"
)

// MetadataAssessArticulation describes the assess_articulation tool.
var MetadataAssessArticulation = &mcp.Tool{
	Name: "assess_articulation",
	Description: "Run a full articulation assessment: transcribe the audio, derive IPA " +
		"transcriptions for the reference text and the transcript, detect articulation " +
		"errors using the SODA taxonomy (Substitution, Omission, Distortion, Addition), " +
		"and return a structured report. The report is also persisted and retrievable " +
		"via get_report.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"audio_wav_base64", "reference_text"},
		"properties": map[string]interface{}{
			"audio_wav_base64": map[string]interface{}{
				"type":        "string",
				"description": "Base64-encoded WAV file of the speaker reading the reference text.",
			},
			"reference_text": map[string]interface{}{
				"type":        "string",
				"description": "The text the speaker was asked to read.",
			},
			"profile": map[string]interface{}{
				"type":        "object",
				"description": "Optional speaker questionnaire answers (field name to answer). Summarized into the report, never quoted.",
			},
		},
	},
}

// MetadataGetReport describes the get_report tool.
var MetadataGetReport = &mcp.Tool{
	Name:        "get_report",
	Description: "Retrieve a previously generated assessment report by its run ID.",
	InputSchema: map[string]interface{}{
		"type":     "object",
		"required": []string{"run_id"},
		"properties": map[string]interface{}{
			"run_id": map[string]interface{}{
				"type":        "string",
				"description": "The run ID returned by assess_articulation.",
			},
		},
	},
}

// MetadataListReports describes the list_reports tool.
var MetadataListReports = &mcp.Tool{
	Name:        "list_reports",
	Description: "List the run IDs of all stored assessment reports.",
	InputSchema: map[string]interface{}{
		"type":       "object",
		"properties": map[string]interface{}{},
	},
}

// InputAssessArticulation is the input for the assess_articulation tool.
type InputAssessArticulation struct {
	AudioWAVBase64 string            `json:"audio_wav_base64"`
	ReferenceText  string            `json:"reference_text"`
	Profile        map[string]string `json:"profile"`
}

// OutputAssessArticulation is the output for the assess_articulation tool.
type OutputAssessArticulation struct {
	// Result is the full assessment result including the run ID.
	Result *analysis.Result `json:"result"`
}

// InputGetReport is the input for the get_report tool.
type InputGetReport struct {
	RunID string `json:"run_id"`
}

// OutputGetReport is the output for the get_report tool.
type OutputGetReport struct {
	Result *analysis.Result `json:"result"`
}

// InputListReports is the input for the list_reports tool.
type InputListReports struct{}

// OutputListReports is the output for the list_reports tool.
type OutputListReports struct {
	RunIDs []string `json:"run_ids"`
}

// Assessor binds the MCP tool handlers to a pipeline and a report store.
type Assessor struct {
	pipeline *analysis.Pipeline
	store    *report.Store
}

// NewAssessor creates an Assessor. The store may be nil, in which case
// reports are returned but not persisted and the retrieval tools fail.
func NewAssessor(pipeline *analysis.Pipeline, store *report.Store) *Assessor {
	return &Assessor{pipeline: pipeline, store: store}
}

// AssessArticulation decodes the audio, runs the pipeline, and persists the
// resulting report.
func (a *Assessor) AssessArticulation(ctx context.Context, _ *mcp.CallToolRequest, in InputAssessArticulation) (*mcp.CallToolResult, OutputAssessArticulation, error) {
	if in.ReferenceText == "" {
		return nil, OutputAssessArticulation{}, errors.New("reference_text is required")
	}
	wav, err := base64.StdEncoding.DecodeString(in.AudioWAVBase64)
	if err != nil {
		return nil, OutputAssessArticulation{}, fmt.Errorf("decode audio_wav_base64: %w", err)
	}
	pcm, err := audio.PrepareForTranscription(wav)
	if err != nil {
		return nil, OutputAssessArticulation{}, err
	}

	res, err := a.pipeline.Run(ctx, analysis.Input{
		PCM:           pcm,
		ReferenceText: in.ReferenceText,
		Profile:       profile.Profile(in.Profile),
	})
	if err != nil {
		return nil, OutputAssessArticulation{}, err
	}

	if a.store != nil {
		if err := a.store.Save(res); err != nil {
			return nil, OutputAssessArticulation{}, err
		}
	}
	return nil, OutputAssessArticulation{Result: res}, nil
}

// GetReport retrieves a stored report by run ID.
func (a *Assessor) GetReport(_ context.Context, _ *mcp.CallToolRequest, in InputGetReport) (*mcp.CallToolResult, OutputGetReport, error) {
	if a.store == nil {
		return nil, OutputGetReport{}, errors.New("report store is not configured")
	}
	res, err := a.store.Get(in.RunID)
	if err != nil {
		return nil, OutputGetReport{}, err
	}
	return nil, OutputGetReport{Result: res}, nil
}

// ListReports lists stored run IDs.
func (a *Assessor) ListReports(_ context.Context, _ *mcp.CallToolRequest, _ InputListReports) (*mcp.CallToolResult, OutputListReports, error) {
	if a.store == nil {
		return nil, OutputListReports{}, errors.New("report store is not configured")
	}
	ids, err := a.store.List()
	if err != nil {
		return nil, OutputListReports{}, err
	}
	return nil, OutputListReports{RunIDs: ids}, nil
}

// NewServer builds an MCP server exposing the assessor's tools. Callers run
// it over the transport of their choice, typically stdio.
func NewServer(a *Assessor, version string) *mcp.Server {
	server := mcp.NewServer(&mcp.Implementation{
		Name:    "artivox",
		Title:   "Artivox Articulation Assessment",
		Version: version,
	}, nil)
	mcp.AddTool(server, MetadataAssessArticulation, a.AssessArticulation)
	mcp.AddTool(server, MetadataGetReport, a.GetReport)
	mcp.AddTool(server, MetadataListReports, a.ListReports)
	return server
}
