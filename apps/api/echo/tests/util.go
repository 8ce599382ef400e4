package tests

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"reflect"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"

	echoapi "github.com/trezcool/maktaba/apps/api/echo"
	"github.com/trezcool/maktaba/core"
	"github.com/trezcool/maktaba/core/member"
	"github.com/trezcool/maktaba/tests"
)

const (
	school      = "greenwood"
	otherSchool = "riverside"
)

var errMissingToken = httpErr{Message: "missing or malformed jwt"}

type fixtures struct {
	env       *testutil.Env
	app       *echoapi.Server
	student   member.Member
	teacher   member.Member
	librarian member.Member // admin
	clerk     member.Member // non-admin librarian
	outsider  member.Member // librarian of another school
}

func setup(t *testing.T) fixtures {
	env := testutil.NewInMemoryEnv(t)

	validate := validator.New()
	translator := newTranslator()
	core.InitValidators(validate, translator)
	member.InitValidators(validate, translator)

	app := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:       env.Conf,
			Logger:     core.NopLogger{},
			LibrarySvc: env.LibrarySvc,
			MemberSvc:  env.MemberSvc,
			Validate:   validate,
			Translator: translator,
		},
	)

	return fixtures{
		env:       env,
		app:       app,
		student:   testutil.CreateMember(t, env.MemberRepo, school, member.KindStudent, "Amina", testutil.InClass("5A")),
		teacher:   testutil.CreateMember(t, env.MemberRepo, school, member.KindTeacher, "Mr. Otieno"),
		librarian: testutil.CreateMember(t, env.MemberRepo, school, member.KindLibrarian, "Mrs. Wanjiru", testutil.AsAdmin),
		clerk:     testutil.CreateMember(t, env.MemberRepo, school, member.KindLibrarian, "Mr. Kamau"),
		outsider:  testutil.CreateMember(t, env.MemberRepo, otherSchool, member.KindLibrarian, "Ms. Achieng", testutil.AsAdmin),
	}
}

func newTranslator() ut.Translator {
	_en := en.New()
	uni := ut.New(_en, _en)
	translator, _ := uni.GetTranslator("en")
	return translator
}

type httpErr struct {
	Message string      `json:"message"`
	Fields  interface{} `json:"fields,omitempty"`
}

type httpTest struct {
	name     string
	method   string
	path     string
	body     []byte
	token    string
	wantCode int
	wantData []byte
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

func (f fixtures) do(method, path, token string, data ...[]byte) *httptest.ResponseRecorder {
	req, rec := newAuthRequest(method, path, token, data...)
	f.app.ServeHTTP(rec, req)
	return rec
}

func (f fixtures) getToken(t *testing.T, mbr member.Member, allSchools ...bool) string {
	claims := echoapi.NewClaims(mbr, f.env.Conf, len(allSchools) > 0 && allSchools[0])
	token, err := echoapi.GenerateToken(claims, f.env.Conf.SecretKey)
	if err != nil {
		t.Fatalf("getToken() failed: %v", err)
	}
	return token
}

func marchallObj(t *testing.T, obj interface{}) []byte {
	data, err := json.Marshal(obj)
	if err != nil {
		t.Fatalf("marchallObj() failed: %v", err)
	}
	return data
}

func unmarchall(t *testing.T, rec *httptest.ResponseRecorder, obj interface{}) {
	if err := json.Unmarshal(rec.Body.Bytes(), obj); err != nil {
		t.Fatalf("unmarchall() failed: %v; body %s", err, rec.Body.String())
	}
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
	if tt.wantData == nil {
		return
	}
	ok, err := jsonBytesEqual(t, rec.Body.Bytes(), tt.wantData)
	if err != nil {
		t.Errorf("jsonBytesEqual() failed to compare; err %v", err)
	}
	if !ok {
		t.Errorf("failed! data = %v; wantData %v", rec.Body.String(), string(tt.wantData))
	}
}

func runHTTPTests(t *testing.T, f fixtures, tests []httpTest) {
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			method := tt.method
			if method == "" {
				method = http.MethodGet
			}
			rec := f.do(method, tt.path, tt.token, tt.body)
			checkCodeAndData(t, tt, rec)
		})
	}
}
