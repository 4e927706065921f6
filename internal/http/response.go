package http

import (
	"lsmview/pkg/humanize"
	"lsmview/pkg/manifest"
	"lsmview/pkg/session"
	"lsmview/pkg/types"
	"lsmview/pkg/version"
)

type Status string

const (
	// StatusOK is used for health-check responses.
	StatusOK Status = "OK"

	// StatusSuccess indicates an operation completed successfully.
	StatusSuccess Status = "success"

	// StatusError indicates an operation failed.
	StatusError Status = "error"
)

// Response represents the standard API response format.
type Response struct {
	Status Status `json:"status,omitempty"`
	Data   any    `json:"data,omitempty"`
	Error  string `json:"error,omitempty"`
}

func NewOKResponse() Response {
	return Response{Status: StatusOK}
}

func NewSuccessResponse() Response {
	return Response{Status: StatusSuccess}
}

func NewDataResponse(data any) Response {
	return Response{Status: StatusSuccess, Data: data}
}

func NewErrorResponse(err string) Response {
	return Response{Status: StatusError, Error: err}
}

type SessionResponse struct {
	ID          string          `json:"id"`
	Name        string          `json:"name"`
	Cursor      int             `json:"cursor"`
	NumEdits    int             `json:"num_edits"`
	Generation  uint64          `json:"generation"`
	Description string          `json:"description"`
	Playing     bool            `json:"playing"`
	Levels      []LevelResponse `json:"levels,omitempty"`
}

type LevelResponse struct {
	Level     int            `json:"level"`
	Count     int            `json:"count"`
	Size      uint64         `json:"size"`
	SizeHuman string         `json:"size_human"`
	Files     []FileResponse `json:"files"`
}

type FileResponse struct {
	ID             types.FileID `json:"id"`
	Size           uint64       `json:"size"`
	Smallest       types.Key    `json:"smallest"`
	Largest        types.Key    `json:"largest"`
	SmallestSeqNum types.SeqNum `json:"smallest_seq_num"`
	LargestSeqNum  types.SeqNum `json:"largest_seq_num"`
}

type EditResponse struct {
	Index       int                            `json:"index"`
	Reason      string                         `json:"reason"`
	Description string                         `json:"description"`
	Deleted     map[types.Level][]types.FileID `json:"deleted,omitempty"`
	Added       map[types.Level][]types.FileID `json:"added,omitempty"`
}

type RunResponse struct {
	Level int    `json:"level"`
	Start int    `json:"start"`
	End   int    `json:"end"`
	Count int    `json:"count,omitempty"`
	Size  uint64 `json:"size,omitempty"`
}

type OverlapsResponse struct {
	Level       int           `json:"level"`
	File        FileResponse  `json:"file"`
	Index       int           `json:"index"`
	Description string        `json:"description"`
	Runs        []RunResponse `json:"runs"`
}

type FileDescriptionResponse struct {
	Level       int    `json:"level"`
	File        uint64 `json:"file"`
	Description string `json:"description"`
}

type PlaybackResponse struct {
	Playing bool `json:"playing"`
	Cursor  int  `json:"cursor"`
}

func newSessionResponse(v session.View) SessionResponse {
	return SessionResponse{
		ID:          v.ID.String(),
		Name:        v.Name,
		Cursor:      v.Cursor,
		NumEdits:    v.NumEdits,
		Generation:  v.Generation,
		Description: v.Description,
		Playing:     v.Playing,
	}
}

func newFileResponse(m *manifest.FileMetadata) FileResponse {
	return FileResponse{
		ID:             m.ID,
		Size:           m.Size,
		Smallest:       m.Smallest,
		Largest:        m.Largest,
		SmallestSeqNum: m.SmallestSeqNum,
		LargestSeqNum:  m.LargestSeqNum,
	}
}

func newLevelResponse(summary version.LevelSummary, files []*manifest.FileMetadata) LevelResponse {
	resp := LevelResponse{
		Level:     int(summary.Level),
		Count:     summary.Count,
		Size:      summary.Size,
		SizeHuman: humanize.IEC(summary.Size),
		Files:     make([]FileResponse, 0, len(files)),
	}
	for _, f := range files {
		resp.Files = append(resp.Files, newFileResponse(f))
	}
	return resp
}

// newOverlapsResponse flattens the runs in level order.
func newOverlapsResponse(o version.Overlaps, description string) OverlapsResponse {
	resp := OverlapsResponse{
		Level:       int(o.Level),
		File:        newFileResponse(o.File),
		Index:       o.Index,
		Description: description,
		Runs:        make([]RunResponse, 0, len(o.Runs)),
	}
	for level := types.Level(0); level < types.NumLevels; level++ {
		run, ok := o.Runs[level]
		if !ok {
			continue
		}
		resp.Runs = append(resp.Runs, RunResponse{
			Level: int(run.Level),
			Start: run.Start,
			End:   run.End,
			Count: run.Count,
			Size:  run.Size,
		})
	}
	return resp
}
