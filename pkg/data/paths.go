package data

// PathType mirrors the path_type field of info/paths.json.
type PathType string

const (
	PathHardlink  PathType = "hardlink"
	PathSoftlink  PathType = "softlink"
	PathDirectory PathType = "directory"

	// Only found in prefix records, for files the installer generated.
	PathPythonEntryPoint PathType = "entry_point"
	PathNoarchPythonPyc  PathType = "pyc_file"
)

type FileMode string

const (
	FileModeText   FileMode = "text"
	FileModeBinary FileMode = "binary"
)

// PathsEntry is one entry of info/paths.json.
type PathsEntry struct {
	Path              string   `json:"_path"`
	PathType          PathType `json:"path_type"`
	PrefixPlaceholder string   `json:"prefix_placeholder,omitempty"`
	FileMode          FileMode `json:"file_mode,omitempty"`
	NoLink            bool     `json:"no_link,omitempty"`
	SHA256            string   `json:"sha256,omitempty"`
	SizeInBytes       uint64   `json:"size_in_bytes,omitempty"`
}

type PathsJSON struct {
	PathsVersion int           `json:"paths_version"`
	Paths        []*PathsEntry `json:"paths"`
}

// PrefixPathsEntry describes a file as it was placed into a prefix.
type PrefixPathsEntry struct {
	Path              string   `json:"_path"`
	OriginalPath      string   `json:"original_path,omitempty"`
	PathType          PathType `json:"path_type"`
	PrefixPlaceholder string   `json:"prefix_placeholder,omitempty"`
	FileMode          FileMode `json:"file_mode,omitempty"`
	NoLink            bool     `json:"no_link,omitempty"`
	SHA256            string   `json:"sha256,omitempty"`
	SizeInBytes       uint64   `json:"size_in_bytes,omitempty"`
}

type PrefixPaths struct {
	PathsVersion int                 `json:"paths_version"`
	Paths        []*PrefixPathsEntry `json:"paths"`
}

// LinkJSON is info/link.json, only present in noarch packages.
type LinkJSON struct {
	NoArch struct {
		Type        NoArch   `json:"type"`
		EntryPoints []string `json:"entry_points,omitempty"`
	} `json:"noarch"`
	PackageMetadataVersion int `json:"package_metadata_version"`
}
