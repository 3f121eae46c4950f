package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/models"
)

type classRepoStub struct {
	classes    map[string]*models.Class
	rosters    map[string][]string
	deletedIDs []string
}

func newClassRepoStub() *classRepoStub {
	return &classRepoStub{classes: map[string]*models.Class{}, rosters: map[string][]string{}}
}

func (r *classRepoStub) List(ctx context.Context, teacherID string, filter models.ClassFilter) ([]models.Class, int, error) {
	var out []models.Class
	for _, class := range r.classes {
		out = append(out, *class)
	}
	return out, len(out), nil
}

func (r *classRepoStub) ListAll(ctx context.Context, teacherID string) ([]models.Class, error) {
	out, _, _ := r.List(ctx, teacherID, models.ClassFilter{})
	return out, nil
}

func (r *classRepoStub) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	class, ok := r.classes[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return class, nil
}

func (r *classRepoStub) Create(ctx context.Context, class *models.Class) error {
	if class.ID == "" {
		class.ID = "class-" + class.Name
	}
	r.classes[class.ID] = class
	return nil
}

func (r *classRepoStub) Update(ctx context.Context, class *models.Class) error {
	if _, ok := r.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	r.classes[class.ID] = class
	return nil
}

func (r *classRepoStub) DeleteWithStudents(ctx context.Context, teacherID, classID string) ([]string, error) {
	if _, ok := r.classes[classID]; !ok {
		return nil, sql.ErrNoRows
	}
	delete(r.classes, classID)
	r.deletedIDs = append(r.deletedIDs, classID)
	return r.rosters[classID], nil
}

type logPurgerStub struct {
	purged []string
}

func (p *logPurgerStub) DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	p.purged = append(p.purged, studentIDs...)
	return int64(len(studentIDs)), nil
}

func TestClassServiceCreateValidation(t *testing.T) {
	repo := newClassRepoStub()
	svc := NewClassService(ClassServiceParams{Repo: repo, Logs: &logPurgerStub{}})

	_, err := svc.Create(context.Background(), "teacher-1", ClassUpsertRequest{Name: "   ", LessonsPerWeek: 3})
	require.Error(t, err)

	_, err = svc.Create(context.Background(), "teacher-1", ClassUpsertRequest{Name: "7B", LessonsPerWeek: 0})
	require.Error(t, err)

	class, err := svc.Create(context.Background(), "teacher-1", ClassUpsertRequest{Name: " 7B ", LessonsPerWeek: 3})
	require.NoError(t, err)
	assert.Equal(t, "7B", class.Name)
	assert.Equal(t, "teacher-1", class.TeacherID)
}

func TestClassServiceDeleteCascadesToLogs(t *testing.T) {
	repo := newClassRepoStub()
	repo.classes["class-1"] = &models.Class{ID: "class-1", Name: "7B", LessonsPerWeek: 3}
	repo.rosters["class-1"] = []string{"stu-1", "stu-2", "stu-3"}
	purger := &logPurgerStub{}
	svc := NewClassService(ClassServiceParams{Repo: repo, Logs: purger})

	err := svc.Delete(context.Background(), "teacher-1", "class-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"class-1"}, repo.deletedIDs)
	assert.ElementsMatch(t, []string{"stu-1", "stu-2", "stu-3"}, purger.purged)
}

func TestClassServiceDeleteMissingClass(t *testing.T) {
	repo := newClassRepoStub()
	svc := NewClassService(ClassServiceParams{Repo: repo, Logs: &logPurgerStub{}})

	err := svc.Delete(context.Background(), "teacher-1", "missing")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not found")
}
