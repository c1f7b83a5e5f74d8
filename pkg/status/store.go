package status

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"
)

// TimeLayout is the submitted_at format, local time without zone.
const TimeLayout = "2006-01-02T15:04:05"

// Record tracks the remote task currently associated with a label.
type Record struct {
	TaskID      string `json:"task_id"`
	Status      Status `json:"status"`
	SubmittedAt string `json:"submitted_at"`
}

// File is the on-disk status document.
type File struct {
	Tasks     map[string]*Record `json:"tasks"`
	Completed []string           `json:"completed"`
}

// NewFile returns an empty status document.
func NewFile() *File {
	return &File{Tasks: map[string]*Record{}, Completed: []string{}}
}

// Put records a fresh submission for label, replacing any previous record.
func (f *File) Put(label, taskID string, submittedAt time.Time) *Record {
	rec := &Record{
		TaskID:      taskID,
		Status:      Pending,
		SubmittedAt: submittedAt.Format(TimeLayout),
	}
	f.Tasks[label] = rec
	return rec
}

// IsCompleted reports whether label's artifacts have all been downloaded.
func (f *File) IsCompleted(label string) bool {
	return slices.Contains(f.Completed, label)
}

// CompletedSet returns the completed labels as a set.
func (f *File) CompletedSet() map[string]bool {
	done := make(map[string]bool, len(f.Completed))
	for _, label := range f.Completed {
		done[label] = true
	}
	return done
}

// MarkDownloaded sets label to Downloaded and adds it to the completed set once.
func (f *File) MarkDownloaded(label string) {
	if rec, ok := f.Tasks[label]; ok {
		rec.Status = Downloaded
	}
	if !f.IsCompleted(label) {
		f.Completed = append(f.Completed, label)
	}
}

// Uncomplete removes label from the completed set.
func (f *File) Uncomplete(label string) {
	f.Completed = slices.DeleteFunc(f.Completed, func(l string) bool { return l == label })
}

// Labels returns the tracked labels in sorted order.
func (f *File) Labels() []string {
	labels := make([]string, 0, len(f.Tasks))
	for label := range f.Tasks {
		labels = append(labels, label)
	}
	slices.Sort(labels)
	return labels
}

// Store reads and writes the status document at Path.
type Store struct {
	Path string
}

func NewStore(path string) *Store {
	return &Store{Path: path}
}

// Load reads the status file. A missing or empty file yields an empty document.
func (s *Store) Load() (*File, error) {
	data, err := os.ReadFile(s.Path)
	if err != nil {
		if os.IsNotExist(err) {
			return NewFile(), nil
		}
		return nil, err
	}

	if len(data) == 0 {
		return NewFile(), nil
	}

	f := NewFile()
	if err := json.Unmarshal(data, f); err != nil {
		// A reset would orphan remote tasks, so a corrupt file stays an error.
		return nil, fmt.Errorf("corrupt status file %s: %w", s.Path, err)
	}
	if f.Tasks == nil {
		f.Tasks = map[string]*Record{}
	}
	if f.Completed == nil {
		f.Completed = []string{}
	}
	for label, rec := range f.Tasks {
		if rec == nil {
			delete(f.Tasks, label)
		}
	}
	return f, nil
}

// Save rewrites the whole status file.
func (s *Store) Save(f *File) error {
	data, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if err := ensureDir(s.Path); err != nil {
		return err
	}

	tmp, err := os.CreateTemp(filepath.Dir(s.Path), filepath.Base(s.Path)+".*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(tmp.Name(), 0644); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.Path)
}

// ensureDir creates the directory if it doesn't exist
func ensureDir(path string) error {
	dir := filepath.Dir(path)
	return os.MkdirAll(dir, 0755)
}
