package handler

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/classpulse/classpulse-api/internal/middleware"
	"github.com/classpulse/classpulse-api/internal/models"
	"github.com/classpulse/classpulse-api/internal/service"
)

type classRepoMock struct {
	classes map[string]*models.Class
	rosters map[string][]string
	deleted []string
}

func (m *classRepoMock) List(ctx context.Context, teacherID string, filter models.ClassFilter) ([]models.Class, int, error) {
	out := make([]models.Class, 0, len(m.classes))
	for _, class := range m.classes {
		if class.TeacherID == teacherID {
			out = append(out, *class)
		}
	}
	return out, len(out), nil
}

func (m *classRepoMock) ListAll(ctx context.Context, teacherID string) ([]models.Class, error) {
	classes, _, err := m.List(ctx, teacherID, models.ClassFilter{})
	return classes, err
}

func (m *classRepoMock) FindByID(ctx context.Context, teacherID, id string) (*models.Class, error) {
	class, ok := m.classes[id]
	if !ok || class.TeacherID != teacherID {
		return nil, sql.ErrNoRows
	}
	return class, nil
}

func (m *classRepoMock) Create(ctx context.Context, class *models.Class) error {
	if m.classes == nil {
		m.classes = map[string]*models.Class{}
	}
	m.classes[class.ID] = class
	return nil
}

func (m *classRepoMock) Update(ctx context.Context, class *models.Class) error {
	if _, ok := m.classes[class.ID]; !ok {
		return sql.ErrNoRows
	}
	m.classes[class.ID] = class
	return nil
}

func (m *classRepoMock) DeleteWithStudents(ctx context.Context, teacherID, classID string) ([]string, error) {
	if _, err := m.FindByID(ctx, teacherID, classID); err != nil {
		return nil, err
	}
	delete(m.classes, classID)
	m.deleted = append(m.deleted, classID)
	return m.rosters[classID], nil
}

type logPurgerMock struct {
	purged []string
}

func (m *logPurgerMock) DeleteByStudents(ctx context.Context, teacherID string, studentIDs []string) (int64, error) {
	m.purged = append(m.purged, studentIDs...)
	return int64(len(studentIDs)), nil
}

func newClassHandler(repo *classRepoMock, purger *logPurgerMock) *ClassHandler {
	svc := service.NewClassService(service.ClassServiceParams{Repo: repo, Logs: purger})
	return NewClassHandler(svc)
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

func authenticate(c *gin.Context, teacherID string) {
	c.Set(middleware.ContextUserKey, &models.JWTClaims{UserID: teacherID})
}

func TestClassHandlerCreate(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &classRepoMock{}
	handler := newClassHandler(repo, &logPurgerMock{})

	payload, _ := json.Marshal(service.ClassUpsertRequest{Name: "7B Science", LessonsPerWeek: 5})
	c, w := newGinContext(http.MethodPost, "/classes", payload)
	authenticate(c, "teacher-1")

	handler.Create(c)
	require.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, repo.classes, 1)
	for _, class := range repo.classes {
		require.Equal(t, "teacher-1", class.TeacherID)
		require.Equal(t, 5, class.LessonsPerWeek)
	}
}

func TestClassHandlerCreateRejectsInvalidPayload(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newClassHandler(&classRepoMock{}, &logPurgerMock{})

	c, w := newGinContext(http.MethodPost, "/classes", []byte(`{"name":`))
	authenticate(c, "teacher-1")

	handler.Create(c)
	require.Equal(t, http.StatusBadRequest, w.Code)
}

func TestClassHandlerGetNotFound(t *testing.T) {
	gin.SetMode(gin.TestMode)
	handler := newClassHandler(&classRepoMock{}, &logPurgerMock{})

	c, w := newGinContext(http.MethodGet, "/classes/missing", nil)
	c.Params = gin.Params{{Key: "id", Value: "missing"}}
	authenticate(c, "teacher-1")

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassHandlerGetScopedToTeacher(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &classRepoMock{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", TeacherID: "teacher-2", Name: "8A", LessonsPerWeek: 4, CreatedAt: time.Now()},
	}}
	handler := newClassHandler(repo, &logPurgerMock{})

	c, w := newGinContext(http.MethodGet, "/classes/class-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	authenticate(c, "teacher-1")

	handler.Get(c)
	require.Equal(t, http.StatusNotFound, w.Code)
}

func TestClassHandlerDeleteCascades(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &classRepoMock{
		classes: map[string]*models.Class{
			"class-1": {ID: "class-1", TeacherID: "teacher-1", Name: "7B", LessonsPerWeek: 5},
		},
		rosters: map[string][]string{"class-1": {"student-1", "student-2"}},
	}
	purger := &logPurgerMock{}
	handler := newClassHandler(repo, purger)

	c, w := newGinContext(http.MethodDelete, "/classes/class-1", nil)
	c.Params = gin.Params{{Key: "id", Value: "class-1"}}
	authenticate(c, "teacher-1")

	handler.Delete(c)
	c.Writer.WriteHeaderNow()
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Empty(t, repo.classes)
	require.ElementsMatch(t, []string{"student-1", "student-2"}, purger.purged)
}

func TestClassHandlerList(t *testing.T) {
	gin.SetMode(gin.TestMode)
	repo := &classRepoMock{classes: map[string]*models.Class{
		"class-1": {ID: "class-1", TeacherID: "teacher-1", Name: "7B", LessonsPerWeek: 5},
		"class-2": {ID: "class-2", TeacherID: "teacher-2", Name: "9C", LessonsPerWeek: 3},
	}}
	handler := newClassHandler(repo, &logPurgerMock{})

	c, w := newGinContext(http.MethodGet, "/classes", nil)
	authenticate(c, "teacher-1")

	handler.List(c)
	require.Equal(t, http.StatusOK, w.Code)

	var envelope struct {
		Data       []models.Class     `json:"data"`
		Pagination *models.Pagination `json:"pagination"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &envelope))
	require.Len(t, envelope.Data, 1)
	require.Equal(t, "7B", envelope.Data[0].Name)
	require.NotNil(t, envelope.Pagination)
	require.Equal(t, 1, envelope.Pagination.TotalCount)
}
