// Package inmemdb provides in-memory repository implementations backing the
// test suites and the admin CLI's dry-run mode.
package inmemdb

import (
	"sync"

	"github.com/gopiashokan/Educational-Management-System/core/exam"
	"github.com/gopiashokan/Educational-Management-System/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users map[string]*user.User

	questions      map[string][]exam.Question // by test ID
	testAnswers    map[string]exam.TestAnswer // by student|test|question
	examMarks      []exam.ExamMark
	publishedMarks map[string][]exam.PublishedMark // by exam ID
	flags          map[string]string
}

func NewDB() *DB {
	return &DB{
		users:          make(map[string]*user.User),
		questions:      make(map[string][]exam.Question),
		testAnswers:    make(map[string]exam.TestAnswer),
		publishedMarks: make(map[string][]exam.PublishedMark),
		flags:          make(map[string]string),
	}
}
