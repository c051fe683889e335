// Package mcpserver provides an MCP (Model Context Protocol) server
// that exposes Florae tools for LLM integration via stdio transport.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/starford/florae/internal/apperr"
	"github.com/starford/florae/internal/gateway"
	"github.com/starford/florae/internal/models"
	"github.com/starford/florae/internal/pipeline"
)

const recordContractURI = "florae://plant-record"

// Processor runs the identification pipeline end to end.
type Processor interface {
	Process(ctx context.Context, job pipeline.Job) (pipeline.Snapshot, error)
}

// Plants reads the saved gallery.
type Plants interface {
	Get(ctx context.Context, id string) (*models.StoredPlantRecord, error)
	List(ctx context.Context, f gateway.Filter) ([]models.StoredPlantRecord, error)
}

// Server wraps the MCP server with Florae tools.
type Server struct {
	mcp    *server.MCPServer
	proc   Processor
	plants Plants
}

// New creates a new MCP server with all Florae tools registered.
func New(proc Processor, plants Plants) *Server {
	s := &Server{proc: proc, plants: plants}

	s.mcp = server.NewMCPServer(
		"Florae",
		"1.0.0",
		server.WithToolCapabilities(false),
		server.WithResourceCapabilities(false, false),
	)

	s.mcp.AddTool(mcp.NewTool("identify_plant",
		mcp.WithDescription("Identify a plant from a photo and describe it. "+
			"When user_id is given the plant is also saved to that user's gallery; "+
			"otherwise nothing is stored."),
		mcp.WithString("image", mcp.Required(), mcp.Description("Image as a data URI, an http(s) URL or a local file path")),
		mcp.WithNumber("latitude", mcp.Description("Latitude where the photo was taken")),
		mcp.WithNumber("longitude", mcp.Description("Longitude where the photo was taken")),
		mcp.WithString("user_id", mcp.Description("Owner to save the plant for (optional)")),
		mcp.WithString("notes", mcp.Description("Free-text notes stored with the plant")),
		mcp.WithNumber("reminder_days", mcp.Description("Enable a watering reminder every N days")),
	), s.identifyPlant)

	s.mcp.AddTool(mcp.NewTool("list_plants",
		mcp.WithDescription("List a user's saved plants, newest first."),
		mcp.WithString("user_id", mcp.Required(), mcp.Description("Owner of the gallery")),
		mcp.WithString("query", mcp.Description("Optional text filter on names and notes")),
	), s.listPlants)

	s.mcp.AddTool(mcp.NewTool("get_plant",
		mcp.WithDescription("Read one saved plant by id."),
		mcp.WithString("id", mcp.Required(), mcp.Description("Plant id")),
	), s.getPlant)

	s.mcp.AddTool(mcp.NewTool("get_record_contract",
		mcp.WithDescription("Returns the Florae plant record contract. "+
			"Call this to learn the fields returned by list_plants and get_plant."),
	), s.getRecordContract)

	s.mcp.AddResource(
		mcp.NewResource(recordContractURI, "Plant Record Contract",
			mcp.WithResourceDescription("Fields and rules of a saved plant record."),
			mcp.WithMIMEType("text/markdown"),
		),
		s.readRecordContractResource,
	)

	return s
}

// ServeStdio starts the MCP server on stdin/stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcp)
}

// MCPServer returns the underlying server for testing.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcp
}

func (s *Server) identifyPlant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	source, err := req.RequireString("image")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	img, err := loadImage(ctx, source)
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	job := pipeline.Job{
		Image:  img,
		UserID: req.GetString("user_id", ""),
		Notes:  req.GetString("notes", ""),
	}

	args := req.GetArguments()
	_, hasLat := args["latitude"]
	_, hasLon := args["longitude"]
	if hasLat != hasLon {
		return mcp.NewToolResultError("latitude and longitude must be given together"), nil
	}
	if hasLat {
		job.Coordinates = &pipeline.Coordinates{
			Latitude:  req.GetFloat("latitude", 0),
			Longitude: req.GetFloat("longitude", 0),
		}
	}
	if _, ok := args["reminder_days"]; ok {
		days := req.GetInt("reminder_days", 0)
		job.ReminderDays = &days
	}

	snap, err := s.proc.Process(ctx, job)
	if err != nil {
		return mcp.NewToolResultError(describeFailure(snap, err)), nil
	}
	return jsonResult(identifyResult(snap))
}

func (s *Server) listPlants(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	userID, err := req.RequireString("user_id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	plants, err := s.plants.List(ctx, gateway.Filter{
		UserID: userID,
		Query:  req.GetString("query", ""),
	})
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	for i := range plants {
		plants[i].ImageData = ""
	}
	if plants == nil {
		plants = []models.StoredPlantRecord{}
	}
	return jsonResult(plants)
}

func (s *Server) getPlant(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	id, err := req.RequireString("id")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	rec, err := s.plants.Get(ctx, id)
	if errors.Is(err, apperr.ErrNotFound) {
		return mcp.NewToolResultError(fmt.Sprintf("not found: %s", id)), nil
	}
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	out := *rec
	out.ImageData = ""
	return jsonResult(out)
}

func (s *Server) getRecordContract(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	return mcp.NewToolResultText(PlantRecordContract), nil
}

func (s *Server) readRecordContractResource(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      recordContractURI,
			MIMEType: "text/markdown",
			Text:     PlantRecordContract,
		},
	}, nil
}

// identification is what identify_plant reports back.
type identification struct {
	ScientificName        string                    `json:"scientific_name"`
	CommonName            string                    `json:"common_name"`
	Family                string                    `json:"family"`
	Genus                 string                    `json:"genus"`
	Description           string                    `json:"description"`
	CareInstructions      string                    `json:"care_instructions"`
	WateringFrequencyDays *int                      `json:"watering_frequency_days"`
	WateringFrequencyText string                    `json:"watering_frequency_text"`
	Location              *models.Location          `json:"location,omitempty"`
	Warning               string                    `json:"warning,omitempty"`
	Saved                 *models.StoredPlantRecord `json:"saved,omitempty"`
	SaveWarnings          []gateway.Warning         `json:"save_warnings,omitempty"`
}

func identifyResult(snap pipeline.Snapshot) identification {
	d := snap.Draft
	out := identification{
		ScientificName:        d.ScientificName,
		CommonName:            d.CommonName,
		Family:                d.Family,
		Genus:                 d.Genus,
		Description:           d.Description,
		CareInstructions:      d.CareInstructions,
		WateringFrequencyDays: d.WateringFrequencyDays,
		WateringFrequencyText: d.WateringFrequencyText,
		Warning:               snap.WarningMessage,
		SaveWarnings:          snap.SaveWarnings,
	}
	if snap.HasLocation {
		loc := d.Location
		out.Location = &loc
	}
	if snap.Record != nil {
		saved := *snap.Record
		saved.ImageData = ""
		out.Saved = &saved
	}
	return out
}

func describeFailure(snap pipeline.Snapshot, err error) string {
	var fe *pipeline.FailureError
	if errors.As(err, &fe) {
		return fmt.Sprintf("%s: %v", fe.Reason, fe.Err)
	}
	if snap.Reason != "" {
		return fmt.Sprintf("%s: %v", snap.Reason, err)
	}
	return err.Error()
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	return mcp.NewToolResultText(string(out)), nil
}
