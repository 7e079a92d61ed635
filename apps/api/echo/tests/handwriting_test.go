package tests

import (
	"encoding/json"
	"net/http"
	"testing"

	echoapi "github.com/gopiashokan/Educational-Management-System/apps/api/echo"
	"github.com/gopiashokan/Educational-Management-System/core/answersheet"
	"github.com/gopiashokan/Educational-Management-System/core/user"
	testutil "github.com/gopiashokan/Educational-Management-System/tests"
)

func Test_handwritingApi_writersWithoutModel(t *testing.T) {
	app := setup(t, &stubClassifier{})

	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)

	tt := httpTest{
		name: "no model yet", method: http.MethodGet, path: "/v1/handwriting/writers", token: getToken(t, teacher),
		wantCode: http.StatusNotFound, wantData: marchallObj(t, httpErr{Error: "no trained handwriting model available"}),
	}
	req, rec := newAuthRequest(tt.method, tt.path, tt.token, tt.body)
	app.ServeHTTP(rec, req)
	checkCodeAndData(t, tt, rec)
}

func Test_handwritingApi_sheetLifecycle(t *testing.T) {
	clf := &stubClassifier{writers: map[string]string{
		"img-alice": "alice",
		"img-bob":   "bob",
	}}
	app := setup(t, clf)

	student := testutil.CreateUser(t, usrRepo, "Hero", "heroic", "hero@test.cd", "", []string{user.RoleStudent}, true)
	teacher := testutil.CreateUser(t, usrRepo, "Teacher", "teach1", "teacher@test.cd", "", []string{user.RoleTeacher}, true)
	evaluator := testutil.CreateUser(t, usrRepo, "Eval", "evalua", "eval@test.cd", "",
		[]string{user.EvaluatorRoleFor("maths", false)}, true)

	teacherToken := getToken(t, teacher)
	evalToken := getToken(t, evaluator)

	// staging
	uploads := []struct {
		name     string
		token    string
		fields   map[string]string
		filename string
		data     []byte
		wantCode int
	}{
		{
			name:  "students cannot upload",
			token: getToken(t, student),
			fields: map[string]string{
				"student_id": "alice", "concept": "maths", "question": "3",
			},
			filename: "scan1.png", data: []byte("img-alice"), wantCode: http.StatusForbidden,
		},
		{
			name:  "foreign concept is refused",
			token: evalToken,
			fields: map[string]string{
				"student_id": "alice", "concept": "physics", "question": "3",
			},
			filename: "scan1.png", data: []byte("img-alice"), wantCode: http.StatusForbidden,
		},
		{
			name:  "missing student id",
			token: evalToken,
			fields: map[string]string{
				"concept": "maths", "question": "3",
			},
			filename: "scan1.png", data: []byte("img-alice"), wantCode: http.StatusBadRequest,
		},
		{
			name:  "alice's sheet is staged",
			token: evalToken,
			fields: map[string]string{
				"student_id": "alice", "concept": "maths", "question": "3",
			},
			filename: "scan1.png", data: []byte("img-alice"), wantCode: http.StatusCreated,
		},
		{
			name:  "bob's sheet is staged",
			token: evalToken,
			fields: map[string]string{
				"student_id": "bob", "concept": "maths", "question": "1",
			},
			filename: "scan2.png", data: []byte("img-alice"), wantCode: http.StatusCreated,
		},
	}
	for _, tt := range uploads {
		t.Run(tt.name, func(t *testing.T) {
			req, rec := newUploadRequest(t, "/v1/answer-sheets", tt.token, tt.fields, tt.filename, tt.data)
			app.ServeHTTP(rec, req)
			if rec.Code != tt.wantCode {
				t.Errorf("failed! code = %v; wantCode %v; body %s", rec.Code, tt.wantCode, rec.Body.String())
			}
		})
	}

	t.Run("teacher lists staged sheets", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/answer-sheets/staged", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var staged []answersheet.Sheet
		if err := json.Unmarshal(rec.Body.Bytes(), &staged); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		if len(staged) != 2 {
			t.Errorf("staged = %d; want 2", len(staged))
		}
	})

	t.Run("teacher routes the staging area", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodPost, "/v1/answer-sheets/route", teacherToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}
		var resp echoapi.RoutingResponse
		if err := json.Unmarshal(rec.Body.Bytes(), &resp); err != nil {
			t.Fatalf("json.Unmarshal() failed! err %v", err)
		}
		statuses := map[string]answersheet.RoutingStatus{}
		for _, out := range resp.Outcomes {
			statuses[out.Filename] = out.Status
		}
		if statuses["alice_maths_Q3.png"] != answersheet.StatusMatched {
			t.Errorf("alice_maths_Q3.png = %s; want matched", statuses["alice_maths_Q3.png"])
		}
		if statuses["bob_maths_Q1.png"] != answersheet.StatusMismatched {
			t.Errorf("bob_maths_Q1.png = %s; want mismatched", statuses["bob_maths_Q1.png"])
		}
		if len(resp.Mismatches) != 1 {
			t.Errorf("mismatches = %d; want 1", len(resp.Mismatches))
		}
	})

	t.Run("teacher reads the mismatch report", func(t *testing.T) {
		tt := httpTest{
			wantCode: http.StatusOK,
			wantData: marchallList(t, answersheet.MismatchRecord{StudentID: "bob", Concept: "maths", Question: "Q1"}),
		}
		req, rec := newAuthRequest(http.MethodGet, "/v1/answer-sheets/mismatches", teacherToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("pending needs a concept", func(t *testing.T) {
		req, rec := newAuthRequest(http.MethodGet, "/v1/answer-sheets/pending", evalToken)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("failed! code = %v; want %v", rec.Code, http.StatusBadRequest)
		}
	})

	t.Run("evaluator sees pending sheets", func(t *testing.T) {
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, []string{"alice_maths_Q3.png"})}
		req, rec := newAuthRequest(http.MethodGet, "/v1/answer-sheets/pending?concept=maths", evalToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})

	t.Run("claiming an unknown sheet fails", func(t *testing.T) {
		body := marchallObj(t, echoapi.ClaimSheetRequest{Concept: "maths", Filename: "zoe_maths_Q9.png"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/answer-sheets/claim", evalToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusNotFound {
			t.Errorf("failed! code = %v; want %v", rec.Code, http.StatusNotFound)
		}
	})

	t.Run("evaluator claims a sheet", func(t *testing.T) {
		body := marchallObj(t, echoapi.ClaimSheetRequest{Concept: "maths", Filename: "alice_maths_Q3.png"})
		req, rec := newAuthRequest(http.MethodPost, "/v1/answer-sheets/claim", evalToken, body)
		app.ServeHTTP(rec, req)
		if rec.Code != http.StatusOK {
			t.Fatalf("failed! code = %v; body %s", rec.Code, rec.Body.String())
		}

		// the claimed sheet leaves the pending list
		tt := httpTest{wantCode: http.StatusOK, wantData: marchallObj(t, []string{})}
		req, rec = newAuthRequest(http.MethodGet, "/v1/answer-sheets/pending?concept=maths", evalToken)
		app.ServeHTTP(rec, req)
		checkCodeAndData(t, tt, rec)
	})
}
