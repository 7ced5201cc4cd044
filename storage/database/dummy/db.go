// Package dummydb is an in-memory storage used by tests and local runs without Postgres.
package dummydb

import (
	"context"
	"sync"

	"github.com/alyxedu/alyx/core"
	"github.com/alyxedu/alyx/core/assignment"
	"github.com/alyxedu/alyx/core/lessonplan"
	"github.com/alyxedu/alyx/core/submission"
	"github.com/alyxedu/alyx/core/user"
)

type (
	DB struct {
		// tx serializes transactions; it is not held by plain repository calls.
		tx sync.Mutex

		user       *userTable
		assignment *assignmentTable
		submission *submissionTable
		lessonPlan *lessonPlanTable
	}

	userTable struct {
		sync.RWMutex
		table map[string]*user.User
	}

	assignmentTable struct {
		sync.RWMutex
		table map[string]*assignment.Assignment
	}

	submissionTable struct {
		sync.RWMutex
		table map[string]*submission.Submission
	}

	lessonPlanTable struct {
		sync.RWMutex
		table map[string]*lessonplan.LessonPlan
	}
)

func Open() *DB {
	return &DB{
		user:       &userTable{table: make(map[string]*user.User)},
		assignment: &assignmentTable{table: make(map[string]*assignment.Assignment)},
		submission: &submissionTable{table: make(map[string]*submission.Submission)},
		lessonPlan: &lessonPlanTable{table: make(map[string]*lessonplan.LessonPlan)},
	}
}

type txRunner struct {
	db *DB
}

var _ core.TxRunner = (*txRunner)(nil) // interface compliance check

// NewTxRunner returns a TxRunner running fn with a nil executor.
// When fn fails every table is restored to its state before the call.
func NewTxRunner(db *DB) core.TxRunner {
	return &txRunner{db: db}
}

func (r *txRunner) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.db.tx.Lock()
	defer r.db.tx.Unlock()

	snap := r.db.snapshot()
	if err := fn(nil); err != nil {
		r.db.restore(snap)
		return err
	}
	return nil
}

type snapshot struct {
	users       map[string]*user.User
	assignments map[string]*assignment.Assignment
	submissions map[string]*submission.Submission
	lessonPlans map[string]*lessonplan.LessonPlan
}

// snapshot deep-copies every table. Repositories mutate stored rows in place.
func (db *DB) snapshot() snapshot {
	snap := snapshot{
		users:       make(map[string]*user.User),
		assignments: make(map[string]*assignment.Assignment),
		submissions: make(map[string]*submission.Submission),
		lessonPlans: make(map[string]*lessonplan.LessonPlan),
	}

	db.user.RLock()
	for id, u := range db.user.table {
		c := cloneUser(*u)
		snap.users[id] = &c
	}
	db.user.RUnlock()

	db.assignment.RLock()
	for id, a := range db.assignment.table {
		c := cloneAssignment(*a)
		snap.assignments[id] = &c
	}
	db.assignment.RUnlock()

	db.submission.RLock()
	for id, sub := range db.submission.table {
		c := cloneSubmission(*sub)
		snap.submissions[id] = &c
	}
	db.submission.RUnlock()

	db.lessonPlan.RLock()
	for id, lp := range db.lessonPlan.table {
		c := cloneLessonPlan(*lp)
		snap.lessonPlans[id] = &c
	}
	db.lessonPlan.RUnlock()

	return snap
}

func (db *DB) restore(snap snapshot) {
	db.user.Lock()
	db.user.table = snap.users
	db.user.Unlock()

	db.assignment.Lock()
	db.assignment.table = snap.assignments
	db.assignment.Unlock()

	db.submission.Lock()
	db.submission.table = snap.submissions
	db.submission.Unlock()

	db.lessonPlan.Lock()
	db.lessonPlan.table = snap.lessonPlans
	db.lessonPlan.Unlock()
}
