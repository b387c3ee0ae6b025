package engine

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"

	"github.com/pavelanni/evalhub/internal/events"
	"github.com/pavelanni/evalhub/internal/model"
	"github.com/pavelanni/evalhub/internal/roster"
	"github.com/pavelanni/evalhub/internal/store"
)

// AssignTargets selects who receives an exam: either explicit students or
// a group's members, never both.
type AssignTargets struct {
	StudentIDs []string `json:"studentIds"`
	GroupID    string   `json:"groupId"`
}

// AssignExam creates an assignment with a fresh magic token for every
// target that does not hold one for the exam yet. Each assignment is
// created independently; already-assigned targets are skipped and counted.
// If every target is already assigned the call fails with ErrConflict.
func (s *Service) AssignExam(ctx context.Context, teacherID, examID string, t AssignTargets) (model.AssignResult, error) {
	hasStudents := len(t.StudentIDs) > 0
	hasGroup := t.GroupID != ""
	if hasStudents == hasGroup {
		return model.AssignResult{}, invalid("exactly one of studentIds or groupId must be provided")
	}

	exam, err := s.store.GetExam(ctx, examID)
	if err != nil {
		return model.AssignResult{}, lookupErr("exam", err)
	}
	if exam.TeacherID != teacherID {
		return model.AssignResult{}, forbidden("exam belongs to another teacher")
	}

	targets, err := s.resolveTargets(ctx, teacherID, t)
	if err != nil {
		return model.AssignResult{}, err
	}

	ids := make([]string, len(targets))
	for i, st := range targets {
		ids[i] = st.ID
	}
	assigned, err := s.store.AssignedStudents(ctx, examID, ids)
	if err != nil {
		return model.AssignResult{}, fmt.Errorf("existing assignments: %w", err)
	}
	if len(assigned) == len(targets) {
		return model.AssignResult{}, fmt.Errorf("%w: all students are already assigned to this exam", ErrConflict)
	}

	res := model.AssignResult{ExamID: examID, Assignments: []model.AssignedStudent{}}
	for _, st := range targets {
		if assigned[st.ID] {
			res.SkippedCount++
			continue
		}
		tok, err := s.tokens.Issue()
		if err != nil {
			return res, fmt.Errorf("issue token: %w", err)
		}
		a := model.Assignment{
			ID:         s.newID(),
			ExamID:     examID,
			StudentID:  st.ID,
			MagicToken: tok,
			Status:     model.StatusPending,
			AssignedAt: s.now(),
		}
		created, err := s.store.CreateAssignment(ctx, a)
		if err != nil {
			return res, fmt.Errorf("create assignment for %s: %w", st.ID, err)
		}
		if !created {
			// Assigned concurrently since the check above.
			res.SkippedCount++
			continue
		}
		res.Assignments = append(res.Assignments, model.AssignedStudent{
			AssignmentID: a.ID,
			StudentID:    st.ID,
			FullName:     st.FullName,
			Email:        st.Email,
			MagicToken:   tok,
			MagicLink:    s.MagicLink(tok),
		})
	}

	slog.Info("exam assigned", "exam_id", examID, "created", len(res.Assignments), "skipped", res.SkippedCount)
	if len(res.Assignments) > 0 {
		s.publish(ctx, events.ExamAssigned, examID, map[string]any{
			"teacherId": teacherID, "created": len(res.Assignments), "skipped": res.SkippedCount,
		})
	}
	return res, nil
}

// resolveTargets expands the assignment targets into the teacher's
// students, in request order for explicit lists.
func (s *Service) resolveTargets(ctx context.Context, teacherID string, t AssignTargets) ([]model.Student, error) {
	if t.GroupID != "" {
		g, err := s.store.GetGroup(ctx, t.GroupID)
		if err != nil {
			return nil, lookupErr("group", err)
		}
		if g.TeacherID != teacherID {
			return nil, forbidden("group belongs to another teacher")
		}
		members, err := s.store.GroupMembers(ctx, g.ID)
		if err != nil {
			return nil, fmt.Errorf("group members: %w", err)
		}
		if len(members) == 0 {
			return nil, invalid("group has no students")
		}
		return members, nil
	}

	seen := make(map[string]bool, len(t.StudentIDs))
	ids := make([]string, 0, len(t.StudentIDs))
	for _, id := range t.StudentIDs {
		if !seen[id] {
			seen[id] = true
			ids = append(ids, id)
		}
	}
	found, err := s.store.StudentsByIDs(ctx, teacherID, ids)
	if err != nil {
		return nil, fmt.Errorf("load students: %w", err)
	}
	if len(found) != len(ids) {
		return nil, notFound("one or more students")
	}
	students := make([]model.Student, len(ids))
	for i, id := range ids {
		students[i] = found[id]
	}
	return students, nil
}

// ImportStudents creates students row by row. A duplicate email, against
// the roster or an earlier row, fails only that row. Every referenced group
// must belong to the teacher, otherwise nothing is created. Any other store
// failure, cancellation included, stops the import and is returned with the
// rows created so far.
func (s *Service) ImportStudents(ctx context.Context, teacherID string, rows []model.StudentInput) (model.BatchResult, error) {
	res := model.BatchResult{Errors: []model.RowError{}, CreatedIDs: []string{}}
	if len(rows) == 0 {
		return res, invalid("no students to import")
	}

	var groupIDs []string
	seenGroup := make(map[string]bool)
	for _, r := range rows {
		for _, gid := range r.GroupIDs {
			if !seenGroup[gid] {
				seenGroup[gid] = true
				groupIDs = append(groupIDs, gid)
			}
		}
	}
	if len(groupIDs) > 0 {
		owned, err := s.store.OwnedGroups(ctx, teacherID, groupIDs)
		if err != nil {
			return res, fmt.Errorf("check groups: %w", err)
		}
		var bad []string
		for _, gid := range groupIDs {
			if !owned[gid] {
				bad = append(bad, gid)
			}
		}
		if len(bad) > 0 {
			return res, fmt.Errorf("groups %s: %w", strings.Join(bad, ", "), ErrNotFound)
		}
	}

	emails := make([]string, len(rows))
	for i, r := range rows {
		emails[i] = normalizeEmail(r.Email)
	}
	existing, err := s.store.ExistingStudentEmails(ctx, teacherID, emails)
	if err != nil {
		return res, fmt.Errorf("existing emails: %w", err)
	}
	inBatch := make(map[string]bool, len(rows))

	for i, r := range rows {
		if err := ctx.Err(); err != nil {
			return res, fmt.Errorf("import stopped before row %d: %w", i+1, err)
		}
		email := emails[i]
		fail := func(msg string) {
			res.Failed++
			res.Errors = append(res.Errors, model.RowError{Row: i + 1, Email: r.Email, FullName: r.FullName, Error: msg})
		}
		switch {
		case strings.TrimSpace(r.FullName) == "" || email == "":
			fail("fullName and email are required")
			continue
		case existing[email]:
			fail("student with this email already exists")
			continue
		case inBatch[email]:
			fail("duplicate email in the same batch")
			continue
		}

		st := model.Student{
			ID:        s.newID(),
			TeacherID: teacherID,
			FullName:  strings.TrimSpace(r.FullName),
			Email:     email,
			Year:      r.Year,
			Career:    r.Career,
			CreatedAt: s.now(),
		}
		if err := s.store.CreateStudent(ctx, st, r.GroupIDs); err != nil {
			if errors.Is(err, store.ErrDuplicate) {
				fail("student with this email already exists")
				continue
			}
			return res, fmt.Errorf("create student at row %d: %w", i+1, err)
		}
		inBatch[email] = true
		res.Created++
		res.CreatedIDs = append(res.CreatedIDs, st.ID)
	}

	slog.Info("students imported", "teacher_id", teacherID, "created", res.Created, "failed", res.Failed)
	if res.Created > 0 {
		s.publish(ctx, events.StudentsImported, teacherID, map[string]any{"created": res.Created, "failed": res.Failed})
	}
	return res, nil
}

// ImportStudentsCSV parses a CSV roster and imports it. Every row joins
// groupIDs. A malformed file fails with ErrInvalidRequest before any row
// is created.
func (s *Service) ImportStudentsCSV(ctx context.Context, teacherID string, r io.Reader, groupIDs []string) (model.BatchResult, error) {
	rows, err := roster.ParseCSV(r, groupIDs)
	if err != nil {
		return model.BatchResult{}, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return s.ImportStudents(ctx, teacherID, rows)
}

func normalizeEmail(e string) string {
	return strings.ToLower(strings.TrimSpace(e))
}
