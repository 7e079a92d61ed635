package tests

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"reflect"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"

	. "github.com/gopiashokan/Educational-Management-System/apps/api/echo"
	"github.com/gopiashokan/Educational-Management-System/core"
	"github.com/gopiashokan/Educational-Management-System/core/answersheet"
	"github.com/gopiashokan/Educational-Management-System/core/exam"
	"github.com/gopiashokan/Educational-Management-System/core/handwriting"
	"github.com/gopiashokan/Educational-Management-System/core/user"
	emailsvc "github.com/gopiashokan/Educational-Management-System/services/email"
	inmemdb "github.com/gopiashokan/Educational-Management-System/storage/database/inmem"
)

var (
	testConf *core.Config
	usrRepo  user.Repository
	examRepo exam.Repository

	errMissingToken = httpErr{Error: "missing or malformed jwt"}
)

// stubClassifier resolves predictions from image bytes so routing can be
// exercised without a trained model.
type stubClassifier struct {
	writers map[string]string // image data -> writer
}

func (c *stubClassifier) Predict(_ context.Context, data []byte) (handwriting.Prediction, error) {
	if w, ok := c.writers[string(data)]; ok {
		return handwriting.Prediction{Writer: w, Confidence: 0.9}, nil
	}
	return handwriting.Prediction{}, errors.Wrap(handwriting.ErrDecode, "unknown image")
}

func setup(t *testing.T, clf *stubClassifier) Server {
	tmp := t.TempDir()
	testConf = &core.Config{
		TestMode:  true,
		AppName:   "EMS",
		SecretKey: []byte("test-secret"),
		Server: core.ServerConfig{
			JWTExpirationDelta:        time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		Handwriting: core.HandwritingConfig{
			DatasetDir: filepath.Join(tmp, "dataset"),
			ModelPath:  filepath.Join(tmp, "model.gob"),
			ResultDir:  filepath.Join(tmp, "result"),
		},
	}

	// set up DB & repos
	db := inmemdb.NewDB()
	usrRepo = inmemdb.NewUserRepository(db)
	examRepo = inmemdb.NewExamRepository(db)

	// set up services
	mailSvc := emailsvc.NewConsoleServiceMock(testConf)
	usrSvc := user.NewService(testConf, usrRepo, mailSvc)
	hwSvc := handwriting.NewService(testConf, handwriting.NewFileModelStore(testConf.Handwriting.ModelPath), core.NopLogger)
	sheetSvc := answersheet.NewService(testConf, clf, mailSvc, core.NopLogger)
	examSvc := exam.NewService(examRepo, core.NopLogger)

	// set up server
	return NewServer(
		&Options{
			DisableReqLogs: true,
			Conf:           testConf,
			Logger:         core.NopLogger,
			UserSvc:        usrSvc,
			HandwritingSvc: hwSvc,
			SheetSvc:       sheetSvc,
			ExamSvc:        examSvc,
		},
	)
}

type httpErr struct {
	Error string `json:"error"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
	extra    interface{}
}

func newAuthRequest(method, path, token string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	var body bytes.Buffer
	if len(data) > 0 {
		body.Write(data[0])
	}
	req := httptest.NewRequest(method, path, &body)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func newRequest(method, path string, data ...[]byte) (*http.Request, *httptest.ResponseRecorder) {
	return newAuthRequest(method, path, "", data...)
}

// newUploadRequest builds a multipart form request with one file part.
func newUploadRequest(
	t *testing.T,
	path, token string,
	fields map[string]string,
	filename string,
	file []byte,
) (*http.Request, *httptest.ResponseRecorder) {
	t.Helper()

	var body bytes.Buffer
	w := multipart.NewWriter(&body)
	for k, v := range fields {
		if err := w.WriteField(k, v); err != nil {
			t.Fatalf("newUploadRequest() failed: %v", err)
		}
	}
	fw, err := w.CreateFormFile("sheet", filename)
	if err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if _, err = io.Copy(fw, bytes.NewReader(file)); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}
	if err = w.Close(); err != nil {
		t.Fatalf("newUploadRequest() failed: %v", err)
	}

	req := httptest.NewRequest(http.MethodPost, path, &body)
	req.Header.Set("Content-Type", w.FormDataContentType())
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	rec := httptest.NewRecorder()
	return req, rec
}

func getToken(t *testing.T, usr user.User) string {
	claims := GetUserClaims(testConf, usr)
	token, err := GenerateToken(claims)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

// nolint
func marchallList(t *testing.T, objs ...interface{}) []byte {
	data, err := json.Marshal(objs)
	if err != nil {
		t.Fatalf("marchallList() failed: %v", err)
	}
	return data
}

func jsonBytesEqual(t *testing.T, b1, b2 []byte) (bool, error) {
	var j1, j2 interface{}
	if err := json.Unmarshal(b1, &j1); err != nil {
		return false, err
	}
	if err := json.Unmarshal(b2, &j2); err != nil {
		return false, err
	}
	if reflect.DeepEqual(j1, j2) {
		return true, nil
	}
	if j1 == nil || j2 == nil {
		return false, nil
	}
	return assert.ElementsMatch(t, j1, j2), nil
}

func checkCodeAndData(t *testing.T, tt httpTest, rec *httptest.ResponseRecorder) {
	if rec.Code != tt.wantCode {
		t.Errorf("failed! code = %v; wantCode %v", rec.Code, tt.wantCode)
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}
