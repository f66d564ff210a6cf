package dedup

// DefaultWorkers is the worker pool size used when a run does not specify
// one.
const DefaultWorkers = 10

// Classifier maps a file name to its MIME type and category label. It is
// an external collaborator; the pipelines only record what it returns.
type Classifier interface {
	Classify(path string) (mimeType, category string)
}

// Service is the orchestration layer for the dedup engine. It coordinates
// the hasher, the index, and the remote store across the upload, download,
// rescan, and selection-restore pipelines.
type Service struct {
	index      Index
	store      Store
	fsys       Filesystem
	hasher     *ContentHasher
	classifier Classifier
	logger     Logger
	clock      Clock
	idgen      IDGenerator
}

// NewService creates a Service with the provided dependencies. store may
// be nil when only scan-only uploads and group operations will run; every
// network-touching path validates the store before scheduling work.
func NewService(index Index, store Store, fsys Filesystem, classifier Classifier, logger Logger, clock Clock, idgen IDGenerator) *Service {
	return &Service{
		index:      index,
		store:      store,
		fsys:       fsys,
		hasher:     NewContentHasher(fsys),
		classifier: classifier,
		logger:     logger,
		clock:      clock,
		idgen:      idgen,
	}
}
