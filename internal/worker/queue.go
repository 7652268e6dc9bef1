package worker

// ChunkJob identifies one note awaiting chunking. The zero value is the
// shutdown sentinel: real notebook and note ids start at 1.
type ChunkJob struct {
	NotebookID int64
	NoteID     int64
}

func (j ChunkJob) sentinel() bool { return j.NotebookID == 0 && j.NoteID == 0 }

// Queues are the two ordered work channels of the pipeline. Each is drained
// by exactly one worker, which serializes all index mutation per queue.
type Queues struct {
	Chunks   chan ChunkJob
	Rebuilds chan int64
}

// NewQueues allocates the work channels with the given buffer depth.
func NewQueues(depth int) *Queues {
	if depth <= 0 {
		depth = 256
	}
	return &Queues{
		Chunks:   make(chan ChunkJob, depth),
		Rebuilds: make(chan int64, depth),
	}
}

// EnqueueChunk schedules a note for chunking without blocking; a full queue
// drops the job, the next scanner pass will pick the note up again.
func (q *Queues) EnqueueChunk(notebookID, noteID int64) bool {
	select {
	case q.Chunks <- ChunkJob{NotebookID: notebookID, NoteID: noteID}:
		return true
	default:
		return false
	}
}

// RequestRebuild schedules a rebuild check without blocking.
func (q *Queues) RequestRebuild(notebookID int64) {
	select {
	case q.Rebuilds <- notebookID:
	default:
	}
}

// Shutdown sends the drain-and-stop sentinel to both queues.
func (q *Queues) Shutdown() {
	q.Chunks <- ChunkJob{}
	q.Rebuilds <- 0
}
