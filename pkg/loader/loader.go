package loader

import (
	"context"
)

type GraphFileType string

const (
	GraphFileTypeRecords GraphFileType = "records"
	GraphFileTypeTable   GraphFileType = "table"
)

// GraphFile represents an input file for a graph build: either the
// line-delimited incident record stream or the regulatory-code reference
// table. The actual content is retrieved via the associated GraphFileLoader.
type GraphFile struct {
	ID       string
	FilePath string
	FileType GraphFileType
	Loader   GraphFileLoader
}

// NewGraphFileParams defines the input parameters for creating a new GraphFile
// instance.
type NewGraphFileParams struct {
	ID       string
	FilePath string
	Loader   GraphFileLoader
}

// NewGraphRecordsFile creates a new GraphFile of type GraphFileTypeRecords.
// This is used for the JSONL incident attribute record stream.
func NewGraphRecordsFile(params NewGraphFileParams) GraphFile {
	return GraphFile{
		ID:       params.ID,
		FilePath: params.FilePath,
		FileType: GraphFileTypeRecords,
		Loader:   params.Loader,
	}
}

// NewGraphTableFile creates a new GraphFile of type GraphFileTypeTable.
// This is used for CSV reference tables such as the CFR index.
func NewGraphTableFile(params NewGraphFileParams) GraphFile {
	return GraphFile{
		ID:       params.ID,
		FilePath: params.FilePath,
		FileType: GraphFileTypeTable,
		Loader:   params.Loader,
	}
}

// GetText retrieves the raw text content of the file using its Loader.
func (f *GraphFile) GetText(ctx context.Context) ([]byte, error) {
	return f.Loader.GetFileText(ctx, *f)
}

// GraphFileLoader defines the interface for loading the contents of a GraphFile.
// Implementations may load files from disk, cloud storage, or other sources.
type GraphFileLoader interface {
	GetFileText(ctx context.Context, file GraphFile) ([]byte, error)
}

func CacheKey(file GraphFile) string {
	return file.ID + ":" + file.FilePath
}
