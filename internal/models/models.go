package models

import "time"

// DocType classifies the kind of instructional document a teacher submits.
type DocType string

const (
	DocTypeDLL     DocType = "DLL"
	DocTypeISP     DocType = "ISP"
	DocTypeISR     DocType = "ISR"
	DocTypeUnknown DocType = "Unknown"
)

// Language is the detected document language.
type Language string

const (
	LanguageEnglish  Language = "English"
	LanguageFilipino Language = "Filipino"
	LanguageUnknown  Language = "Unknown"
)

// ComplianceStatus classifies a submission relative to its deadline.
type ComplianceStatus string

const (
	ComplianceCompliant    ComplianceStatus = "compliant"
	ComplianceLate         ComplianceStatus = "late"
	ComplianceNonCompliant ComplianceStatus = "non-compliant"
	ComplianceUnknown      ComplianceStatus = "unknown"
)

// SourceFile is a raw input file as handed over by the caller. It is
// consumed once by the transcoder and never mutated.
type SourceFile struct {
	Name string
	Ext  string
	Size int64
	Data []byte
}

// ContentElement is one styled run of text between markup and page layout.
type ContentElement struct {
	Text    string
	Bold    bool
	Italic  bool
	Heading bool
}

// DocMetadata holds best-effort signals recovered from a document's text.
// Every field is advisory; user-entered values always win.
type DocMetadata struct {
	DocType    DocType
	WeekNumber int
	SchoolYear string
	Subject    string
	GradeLevel int
	Language   Language
	School     string
	Teacher    string
	Confidence int
	RawText    string
}

// UploadOptions carries the user-confirmed record fields for an upload.
// They override anything the metadata extractor guessed.
type UploadOptions struct {
	DocType    DocType  `json:"docType"`
	WeekNumber int      `json:"weekNumber"`
	SchoolYear string   `json:"schoolYear"`
	Subject    string   `json:"subject"`
	GradeLevel int      `json:"gradeLevel"`
	School     string   `json:"school"`
	Teacher    string   `json:"teacher"`
	Language   Language `json:"language"`
}

// QueueItem is a durable, self-contained upload request. It is created when
// a direct upload fails or is attempted offline, and deleted only after the
// remote store confirms a write or reports an existing duplicate.
type QueueItem struct {
	Key        string
	FileName   string
	FilePath   string
	FileHash   string
	FileSize   int64
	PDFBytes   []byte
	Options    UploadOptions
	EnqueuedAt time.Time
	Attempts   int
	LastError  string
}

// Phase names one stage of the processing pipeline.
type Phase string

const (
	PhaseTranscoding Phase = "transcoding"
	PhaseMetadata    Phase = "extracting-metadata"
	PhaseCompressing Phase = "compressing"
	PhaseHashing     Phase = "hashing"
	PhaseStamping    Phase = "stamping"
	PhaseUploading   Phase = "uploading"
	PhaseDone        Phase = "done"
	PhaseError       Phase = "error"
)

// PipelineEvent is the only channel between the pipeline and its caller.
type PipelineEvent struct {
	Phase    Phase
	Progress int
	Message  string
	Metadata *DocMetadata
	Err      string
	Result   *UploadOutcome
}

// UploadOutcome describes how the upload phase terminated. Exactly one of
// Uploaded, Duplicate or Queued is set.
type UploadOutcome struct {
	Fingerprint string
	StoragePath string
	Uploaded    bool
	Duplicate   bool
	Queued      bool
	Record      *DocumentRecord
}

// DocumentRecord is the archive row written to Firestore for each accepted
// submission. The fingerprint doubles as the verification locator.
type DocumentRecord struct {
	Fingerprint      string    `firestore:"fingerprint,omitempty" json:"fingerprint"`
	FileName         string    `firestore:"fileName,omitempty" json:"fileName"`
	StoragePath      string    `firestore:"storagePath,omitempty" json:"storagePath"`
	FileSize         int64     `firestore:"fileSize,omitempty" json:"fileSize"`
	DocType          DocType   `firestore:"docType,omitempty" json:"docType"`
	WeekNumber       int       `firestore:"weekNumber,omitempty" json:"weekNumber"`
	SchoolYear       string    `firestore:"schoolYear,omitempty" json:"schoolYear"`
	Subject          string    `firestore:"subject,omitempty" json:"subject"`
	GradeLevel       int       `firestore:"gradeLevel,omitempty" json:"gradeLevel"`
	School           string    `firestore:"school,omitempty" json:"school"`
	Teacher          string    `firestore:"teacher,omitempty" json:"teacher"`
	Language         Language  `firestore:"language,omitempty" json:"language"`
	ComplianceStatus string    `firestore:"complianceStatus,omitempty" json:"complianceStatus"`
	ComplianceSource string    `firestore:"complianceSource,omitempty" json:"complianceSource"`
	SubmittedAt      time.Time `firestore:"submittedAt,omitempty" json:"submittedAt"`
}
