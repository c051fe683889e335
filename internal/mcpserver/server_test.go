package mcpserver

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
	"github.com/starford/florae/internal/recognition"
)

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\rIHDR")

type fakeProcessor struct {
	jobs []pipeline.Job
	snap pipeline.Snapshot
	err  error
}

func (f *fakeProcessor) Process(_ context.Context, job pipeline.Job) (pipeline.Snapshot, error) {
	f.jobs = append(f.jobs, job)
	return f.snap, f.err
}

type fakePlants struct {
	records []models.StoredPlantRecord
	filter  gateway.Filter
}

func (f *fakePlants) Get(_ context.Context, id string) (*models.StoredPlantRecord, error) {
	for i := range f.records {
		if f.records[i].ID == id {
			rec := f.records[i]
			return &rec, nil
		}
	}
	return nil, apperr.ErrNotFound
}

func (f *fakePlants) List(_ context.Context, filter gateway.Filter) ([]models.StoredPlantRecord, error) {
	f.filter = filter
	out := make([]models.StoredPlantRecord, len(f.records))
	copy(out, f.records)
	return out, nil
}

func testServer(t *testing.T) (*Server, *fakeProcessor, *fakePlants) {
	t.Helper()
	proc := &fakeProcessor{snap: pipeline.Snapshot{
		State: pipeline.StateReady,
		Draft: models.PlantDraft{
			ScientificName:        "Monstera deliciosa",
			CommonName:            "Swiss cheese plant",
			WateringFrequencyDays: models.IntPtr(7),
		},
	}}
	plants := &fakePlants{records: []models.StoredPlantRecord{
		{ID: "p-1", UserID: "u-1", ScientificName: "Ficus lyrata", ImageData: "data:image/png;base64,AAAA"},
	}}
	return New(proc, plants), proc, plants
}

func callTool(t *testing.T, srv *Server, name string, args map[string]interface{}) *mcp.CallToolResult {
	t.Helper()
	ctx := context.Background()
	req := mcp.CallToolRequest{}
	req.Method = "tools/call"
	req.Params.Name = name
	req.Params.Arguments = args

	var result *mcp.CallToolResult
	var err error

	switch name {
	case "identify_plant":
		result, err = srv.identifyPlant(ctx, req)
	case "list_plants":
		result, err = srv.listPlants(ctx, req)
	case "get_plant":
		result, err = srv.getPlant(ctx, req)
	case "get_record_contract":
		result, err = srv.getRecordContract(ctx, req)
	default:
		t.Fatalf("unknown tool: %s", name)
	}

	if err != nil {
		t.Fatalf("tool %s error: %v", name, err)
	}
	return result
}

func resultText(r *mcp.CallToolResult) string {
	if len(r.Content) > 0 {
		if tc, ok := r.Content[0].(mcp.TextContent); ok {
			return tc.Text
		}
	}
	return ""
}

func TestIdentifyPlant_DataURI(t *testing.T) {
	srv, proc, _ := testServer(t)

	img := models.Image{Data: pngBytes, MIMEType: "image/png"}
	r := callTool(t, srv, "identify_plant", map[string]interface{}{
		"image":     img.DataURI(),
		"latitude":  52.37,
		"longitude": 4.89,
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}

	var got identification
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if got.ScientificName != "Monstera deliciosa" || got.CommonName != "Swiss cheese plant" {
		t.Errorf("result = %+v", got)
	}
	if got.Saved != nil {
		t.Error("nothing should be saved without a user")
	}

	if len(proc.jobs) != 1 {
		t.Fatalf("jobs = %d", len(proc.jobs))
	}
	job := proc.jobs[0]
	if job.Coordinates == nil || job.Coordinates.Latitude != 52.37 || job.Coordinates.Longitude != 4.89 {
		t.Errorf("coordinates = %+v", job.Coordinates)
	}
	if job.Image.MIMEType != "image/png" || len(job.Image.Data) != len(pngBytes) {
		t.Errorf("image = %s %d bytes", job.Image.MIMEType, len(job.Image.Data))
	}
	if job.UserID != "" || job.ReminderDays != nil {
		t.Errorf("job = %+v", job)
	}
}

func TestIdentifyPlant_FileAndSave(t *testing.T) {
	srv, proc, _ := testServer(t)
	proc.snap.State = pipeline.StateSaved
	proc.snap.Record = &models.StoredPlantRecord{ID: "p-9", ImageData: "data:image/png;base64,AAAA"}

	path := filepath.Join(t.TempDir(), "leaf.png")
	if err := os.WriteFile(path, pngBytes, 0o644); err != nil {
		t.Fatal(err)
	}

	r := callTool(t, srv, "identify_plant", map[string]interface{}{
		"image":         path,
		"user_id":       "u-1",
		"notes":         "kitchen",
		"reminder_days": float64(4),
	})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	text := resultText(r)
	if !strings.Contains(text, `"id": "p-9"`) {
		t.Errorf("saved record missing: %s", text)
	}
	if strings.Contains(text, "base64") {
		t.Error("image data leaked into the result")
	}

	job := proc.jobs[0]
	if job.UserID != "u-1" || job.Notes != "kitchen" {
		t.Errorf("job = %+v", job)
	}
	if job.ReminderDays == nil || *job.ReminderDays != 4 {
		t.Errorf("reminder days = %v", job.ReminderDays)
	}
	if job.Image.URI != path {
		t.Errorf("image uri = %q", job.Image.URI)
	}
	if job.Coordinates != nil {
		t.Error("coordinates should be nil")
	}
}

func TestIdentifyPlant_Errors(t *testing.T) {
	srv, proc, _ := testServer(t)

	cases := map[string]map[string]interface{}{
		"missing image":  {},
		"missing file":   {"image": filepath.Join(t.TempDir(), "none.jpg")},
		"half location":  {"image": "data:image/png;base64,iVBORw0KGgo=", "latitude": 1.0},
		"loopback url":   {"image": "http://127.0.0.1/leaf.jpg"},
		"metadata url":   {"image": "http://169.254.169.254/latest"},
		"plain data uri": {"image": "data:image/png,abc"},
	}
	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			r := callTool(t, srv, "identify_plant", args)
			if !r.IsError {
				t.Errorf("expected error, got %s", resultText(r))
			}
		})
	}
	if len(proc.jobs) != 0 {
		t.Errorf("pipeline ran %d times on bad input", len(proc.jobs))
	}
}

func TestIdentifyPlant_PipelineFailure(t *testing.T) {
	srv, proc, _ := testServer(t)
	proc.err = &pipeline.FailureError{Reason: pipeline.ReasonNoSuggestionsFound, Err: recognition.ErrNoSuggestions}

	r := callTool(t, srv, "identify_plant", map[string]interface{}{
		"image": "data:image/png;base64,iVBORw0KGgo=",
	})
	if !r.IsError {
		t.Fatal("expected error")
	}
	if !strings.HasPrefix(resultText(r), "no_suggestions_found: ") {
		t.Errorf("message = %q", resultText(r))
	}
}

func TestListPlants(t *testing.T) {
	srv, _, plants := testServer(t)

	r := callTool(t, srv, "list_plants", map[string]interface{}{"user_id": "u-1", "query": "ficus"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	var got []models.StoredPlantRecord
	if err := json.Unmarshal([]byte(resultText(r)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got[0].ID != "p-1" {
		t.Fatalf("plants = %+v", got)
	}
	if got[0].ImageData != "" {
		t.Error("image data should be omitted")
	}
	if plants.filter.UserID != "u-1" || plants.filter.Query != "ficus" {
		t.Errorf("filter = %+v", plants.filter)
	}

	r = callTool(t, srv, "list_plants", map[string]interface{}{})
	if !r.IsError {
		t.Error("expected error without user_id")
	}
}

func TestGetPlant(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "get_plant", map[string]interface{}{"id": "p-1"})
	if r.IsError {
		t.Fatalf("unexpected error: %s", resultText(r))
	}
	if text := resultText(r); !strings.Contains(text, "Ficus lyrata") || strings.Contains(text, "image_data") {
		t.Errorf("get result = %s", text)
	}

	r = callTool(t, srv, "get_plant", map[string]interface{}{"id": "nope"})
	if !r.IsError || resultText(r) != "not found: nope" {
		t.Errorf("missing plant = %q", resultText(r))
	}
}

func TestRecordContract(t *testing.T) {
	srv, _, _ := testServer(t)

	r := callTool(t, srv, "get_record_contract", map[string]interface{}{})
	if resultText(r) != PlantRecordContract {
		t.Error("tool and constant differ")
	}

	contents, err := srv.readRecordContractResource(context.Background(), mcp.ReadResourceRequest{})
	if err != nil {
		t.Fatal(err)
	}
	tc, ok := contents[0].(mcp.TextResourceContents)
	if !ok || tc.URI != "florae://plant-record" || tc.Text != PlantRecordContract {
		t.Errorf("resource = %+v", contents[0])
	}
	if srv.MCPServer() == nil {
		t.Error("MCPServer is nil")
	}
}
