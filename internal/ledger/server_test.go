package ledger

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/onsi/gomega/ghttp"

	"github.com/zombor/goalpulse/internal/lock"
)

var _ = Describe("Server", func() {
	var (
		db          *mockDB
		storage     *mockStorage
		scanner     *mockScanner
		gate        *lock.Gate
		auth        BasicAuth
		server      *Server
		ghttpServer *ghttp.Server
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		scanner = newMockScanner()
		gate = lock.NewGate(func() bool { return true })
		auth = BasicAuth{}
		ghttpServer = ghttp.NewServer()
	})

	JustBeforeEach(func() {
		clock := &mockTimeSource{now: time.Date(2025, 6, 15, 14, 30, 0, 0, time.Local)}
		service := NewServiceWithDeps(db, scanner, storage, gate, nil, &mockIDGenerator{id: "abc123"}, clock)
		server = NewServerWithMux(service, gate, auth, http.NewServeMux())
	})

	AfterEach(func() {
		ghttpServer.Close()
	})

	do := func(req *http.Request) (*http.Response, []byte) {
		ghttpServer.AppendHandlers(server.ServeHTTP)
		resp, err := http.DefaultClient.Do(req)
		Expect(err).NotTo(HaveOccurred())
		defer resp.Body.Close()
		body, err := io.ReadAll(resp.Body)
		Expect(err).NotTo(HaveOccurred())
		return resp, body
	}

	request := func(method, path, body string) *http.Request {
		var r io.Reader
		if body != "" {
			r = strings.NewReader(body)
		}
		req, err := http.NewRequest(method, ghttpServer.URL()+path, r)
		Expect(err).NotTo(HaveOccurred())
		if body != "" {
			req.Header.Set("Content-Type", "application/json")
		}
		return req
	}

	errorOf := func(body []byte) string {
		var e map[string]string
		Expect(json.Unmarshal(body, &e)).To(Succeed())
		return e["error"]
	}

	Describe("CORS", func() {
		It("should answer preflight requests", func() {
			resp, _ := do(request(http.MethodOptions, "/api/transactions", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(resp.Header.Get("Access-Control-Allow-Origin")).To(Equal("*"))
			Expect(resp.Header.Get("Access-Control-Allow-Methods")).To(ContainSubstring("PUT"))
		})
	})

	Describe("authentication", func() {
		BeforeEach(func() {
			auth = BasicAuth{Username: "saver", Password: "s3cret"}
		})

		It("should refuse requests without credentials", func() {
			resp, body := do(request(http.MethodGet, "/api/overview", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Basic"))
			Expect(errorOf(body)).To(Equal("Unauthorized"))
		})

		It("should refuse wrong credentials", func() {
			req := request(http.MethodGet, "/api/overview", "")
			req.SetBasicAuth("saver", "wrong")
			resp, _ := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
		})

		It("should accept the right credentials", func() {
			req := request(http.MethodGet, "/api/overview", "")
			req.SetBasicAuth("saver", "s3cret")
			resp, _ := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Describe("lock", func() {
		It("should lock when the app goes to the background", func() {
			resp, body := do(request(http.MethodPost, "/api/app-state", `{"state":"background"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"locked":true}`))
			Expect(gate.Locked()).To(BeTrue())
		})

		When("locked", func() {
			BeforeEach(func() {
				Expect(gate.HandleStateChange(lock.StateBackground)).To(BeTrue())
			})

			It("should refuse data routes", func() {
				resp, body := do(request(http.MethodGet, "/api/transactions", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusLocked))
				Expect(errorOf(body)).To(Equal("App is locked"))
			})

			It("should still report the lock state", func() {
				resp, body := do(request(http.MethodGet, "/api/lock", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(body)).To(MatchJSON(`{"locked":true}`))
			})

			It("should open after unlocking", func() {
				resp, _ := do(request(http.MethodPost, "/api/unlock", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))

				resp, _ = do(request(http.MethodGet, "/api/transactions", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
			})
		})

		It("should reject a malformed state body", func() {
			resp, body := do(request(http.MethodPost, "/api/app-state", `{`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(body)).To(Equal("Invalid request body"))
		})
	})

	Describe("transactions", func() {
		It("should add an expense", func() {
			resp, body := do(request(http.MethodPost, "/api/transactions/expense", `{"amount":1250,"category":"Taxi","note":"airport"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var t Transaction
			Expect(json.Unmarshal(body, &t)).To(Succeed())
			Expect(t.Type).To(Equal(TypeExpense))
			Expect(t.Amount).To(Equal(int64(1250)))
			Expect(t.Category).To(Equal("Taxi"))
			Expect(t.Date).To(Equal("2025-06-15"))
		})

		It("should add income", func() {
			resp, _ := do(request(http.MethodPost, "/api/transactions/income", `{"amount":90000}`))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))
			Expect(db.goal.Saved).To(Equal(int64(194417 + 90000)))
		})

		It("should reject a zero amount", func() {
			resp, body := do(request(http.MethodPost, "/api/transactions/expense", `{"amount":0}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(body)).To(Equal(ErrInvalidAmount.Error()))
		})

		It("should list transactions with a limit", func() {
			for i := 0; i < 3; i++ {
				Expect(db.AddTransaction(&Transaction{Type: TypeIncome, Amount: 1, Date: "2025-06-01"})).To(Succeed())
			}
			resp, body := do(request(http.MethodGet, "/api/transactions?limit=2", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var ts []*Transaction
			Expect(json.Unmarshal(body, &ts)).To(Succeed())
			Expect(ts).To(HaveLen(2))
		})

		It("should reject a bad limit", func() {
			resp, _ := do(request(http.MethodGet, "/api/transactions?limit=lots", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should delete a transaction", func() {
			Expect(db.AddTransaction(&Transaction{Type: TypeIncome, Amount: 1, Date: "2025-06-01"})).To(Succeed())
			resp, _ := do(request(http.MethodDelete, "/api/transactions/1", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.transactions).To(BeEmpty())
		})

		It("should return 404 for a missing transaction", func() {
			resp, _ := do(request(http.MethodDelete, "/api/transactions/7", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should reject a bad ID", func() {
			resp, body := do(request(http.MethodDelete, "/api/transactions/abc", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(body)).To(Equal("Invalid ID"))
		})

		When("the database fails", func() {
			BeforeEach(func() {
				db.listErr = errors.New("disk on fire")
			})

			It("should hide the error", func() {
				resp, body := do(request(http.MethodGet, "/api/transactions", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusInternalServerError))
				Expect(errorOf(body)).To(Equal("Internal server error"))
			})
		})
	})

	Describe("receipts", func() {
		upload := func(filename, contentType string, data []byte) *http.Request {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			h := make(textproto.MIMEHeader)
			h.Set("Content-Disposition", `form-data; name="file"; filename="`+filename+`"`)
			if contentType != "" {
				h.Set("Content-Type", contentType)
			}
			part, err := writer.CreatePart(h)
			Expect(err).NotTo(HaveOccurred())
			_, err = part.Write(data)
			Expect(err).NotTo(HaveOccurred())
			Expect(writer.Close()).To(Succeed())

			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/receipts/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())
			return req
		}

		It("should scan an upload into a draft", func() {
			resp, body := do(upload("receipt.jpg", "image/jpeg", []byte("jpeg")))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var draft Draft
			Expect(json.Unmarshal(body, &draft)).To(Succeed())
			Expect(draft.ImageFile).To(Equal("abc123_receipt.jpg"))
			Expect(draft.Amount).To(Equal(int64(2599)))
			Expect(draft.Store).To(Equal("Corner Cafe"))
		})

		It("should guess the content type from the extension", func() {
			resp, body := do(upload("scan.pdf", "", []byte("%PDF")))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var draft Draft
			Expect(json.Unmarshal(body, &draft)).To(Succeed())
			Expect(draft.ContentType).To(Equal("application/pdf"))
		})

		It("should reject a request without a file", func() {
			body := &bytes.Buffer{}
			writer := multipart.NewWriter(body)
			Expect(writer.WriteField("note", "x")).To(Succeed())
			Expect(writer.Close()).To(Succeed())
			req, err := http.NewRequest(http.MethodPost, ghttpServer.URL()+"/api/receipts/scan", body)
			Expect(err).NotTo(HaveOccurred())
			req.Header.Set("Content-Type", writer.FormDataContentType())

			resp, respBody := do(req)
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(errorOf(respBody)).To(ContainSubstring("No file"))
		})

		When("the scan fails", func() {
			BeforeEach(func() {
				scanner.scanErr = errors.New("blurry")
			})

			It("should return 422", func() {
				resp, body := do(upload("receipt.jpg", "image/jpeg", []byte("jpeg")))
				Expect(resp.StatusCode).To(Equal(http.StatusUnprocessableEntity))
				Expect(errorOf(body)).To(Equal("Could not process receipt. Please try again."))
				Expect(storage.files).To(BeEmpty())
			})
		})

		It("should save a confirmed draft", func() {
			storage.files["abc123_receipt.jpg"] = []byte("jpeg")
			resp, body := do(request(http.MethodPost, "/api/receipts",
				`{"image_file":"abc123_receipt.jpg","content_type":"image/jpeg","store":"Corner Cafe","amount":2599,"date":"2025-06-14"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusCreated))

			var r Receipt
			Expect(json.Unmarshal(body, &r)).To(Succeed())
			Expect(r.ID).NotTo(BeZero())
			Expect(db.transactions).To(HaveLen(1))
		})

		It("should reject a bad draft date", func() {
			storage.files["abc123_receipt.jpg"] = []byte("jpeg")
			resp, _ := do(request(http.MethodPost, "/api/receipts",
				`{"image_file":"abc123_receipt.jpg","amount":2599,"date":"June 14"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		It("should discard a draft", func() {
			storage.files["abc123_receipt.jpg"] = []byte("jpeg")
			resp, _ := do(request(http.MethodDelete, "/api/receipts/drafts/abc123_receipt.jpg", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(storage.files).To(BeEmpty())
		})

		When("a receipt exists", func() {
			BeforeEach(func() {
				storage.files["img.png"] = []byte("png bytes")
				db.receipts[5] = &Receipt{ID: 5, ImageFile: "img.png", ContentType: "image/png", Store: "Shell", Amount: 4000, Date: "2025-06-10"}
				db.nextID = 5
			})

			It("should return it", func() {
				resp, body := do(request(http.MethodGet, "/api/receipts/5", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var r Receipt
				Expect(json.Unmarshal(body, &r)).To(Succeed())
				Expect(r.Store).To(Equal("Shell"))
			})

			It("should list it", func() {
				resp, body := do(request(http.MethodGet, "/api/receipts", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				var rs []*Receipt
				Expect(json.Unmarshal(body, &rs)).To(Succeed())
				Expect(rs).To(HaveLen(1))
			})

			It("should serve its image", func() {
				resp, body := do(request(http.MethodGet, "/api/receipts/5/image", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(resp.Header.Get("Content-Type")).To(Equal("image/png"))
				Expect(string(body)).To(Equal("png bytes"))
			})

			It("should refuse to discard its image as a draft", func() {
				resp, body := do(request(http.MethodDelete, "/api/receipts/drafts/img.png", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				Expect(errorOf(body)).To(ContainSubstring("image belongs to a saved receipt"))

				resp, body = do(request(http.MethodGet, "/api/receipts/5/image", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusOK))
				Expect(string(body)).To(Equal("png bytes"))
			})

			It("should refuse a second receipt for the same image", func() {
				resp, _ := do(request(http.MethodPost, "/api/receipts",
					`{"image_file":"img.png","content_type":"image/png","store":"Shell","amount":4000,"date":"2025-06-10"}`))
				Expect(resp.StatusCode).To(Equal(http.StatusConflict))
				Expect(db.receipts).To(HaveLen(1))
			})

			It("should delete it", func() {
				resp, _ := do(request(http.MethodDelete, "/api/receipts/5", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
				Expect(db.receipts).To(BeEmpty())
				Expect(storage.files).To(BeEmpty())
			})
		})

		It("should return 404 for a missing receipt", func() {
			resp, _ := do(request(http.MethodGet, "/api/receipts/99", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("extract", func() {
		It("should extract fields from text", func() {
			resp, body := do(request(http.MethodPost, "/api/extract", `{"text":"Trader Joe's\n01/15/2025\nTOTAL $12.34"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"total":12.34,"date":"2025-01-15","store":"Trader Joe's"}`))
		})
	})

	Describe("goal", func() {
		It("should return the goal", func() {
			resp, body := do(request(http.MethodGet, "/api/goal", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var g Goal
			Expect(json.Unmarshal(body, &g)).To(Succeed())
			Expect(g.Name).To(Equal("House"))
		})

		It("should update the goal", func() {
			resp, _ := do(request(http.MethodPut, "/api/goal", `{"name":"Car","target":1500000,"monthly_contribution":50000}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(db.goal.Name).To(Equal("Car"))
		})

		It("should reject an invalid goal", func() {
			resp, _ := do(request(http.MethodPut, "/api/goal", `{"name":"","target":100}`))
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		When("there is no goal", func() {
			BeforeEach(func() {
				db.goal = nil
			})

			It("should return 404", func() {
				resp, _ := do(request(http.MethodGet, "/api/goal", ""))
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
			})
		})
	})

	Describe("dashboard", func() {
		It("should return the overview", func() {
			resp, body := do(request(http.MethodGet, "/api/overview", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var o Overview
			Expect(json.Unmarshal(body, &o)).To(Succeed())
			Expect(o.Goal).NotTo(BeNil())
		})

		It("should return the challenge targets", func() {
			resp, body := do(request(http.MethodGet, "/api/challenge", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var c struct {
				Targets []int64 `json:"targets"`
			}
			Expect(json.Unmarshal(body, &c)).To(Succeed())
			Expect(c.Targets).To(HaveLen(30))
		})

		It("should return the categories", func() {
			resp, body := do(request(http.MethodGet, "/api/categories", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			var c struct {
				Categories []string `json:"categories"`
			}
			Expect(json.Unmarshal(body, &c)).To(Succeed())
			Expect(c.Categories).To(Equal(Categories))
		})
	})

	Describe("settings", func() {
		It("should list settings", func() {
			resp, body := do(request(http.MethodGet, "/api/settings", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"currency":"USD","biometric_enabled":"false","notifications_enabled":"true"}`))
		})

		It("should set and get a setting", func() {
			resp, _ := do(request(http.MethodPut, "/api/settings/currency", `{"value":"EUR"}`))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			resp, body := do(request(http.MethodGet, "/api/settings/currency", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(string(body)).To(MatchJSON(`{"key":"currency","value":"EUR"}`))
		})

		It("should return 404 for an unknown setting", func() {
			resp, _ := do(request(http.MethodGet, "/api/settings/theme", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})
	})

	Describe("export", func() {
		It("should download JSON", func() {
			resp, body := do(request(http.MethodGet, "/api/export/json", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Disposition")).To(ContainSubstring("goalpulse-export.json"))
			Expect(json.Valid(body)).To(BeTrue())
		})

		It("should download CSV", func() {
			resp, body := do(request(http.MethodGet, "/api/export/csv", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(resp.Header.Get("Content-Type")).To(HavePrefix("text/csv"))
			Expect(string(body)).To(HavePrefix("id,type,amount,category,date,note,created_at"))
		})
	})

	Describe("clear data", func() {
		It("should clear everything", func() {
			Expect(db.AddTransaction(&Transaction{Type: TypeIncome, Amount: 1, Date: "2025-06-01"})).To(Succeed())
			resp, _ := do(request(http.MethodDelete, "/api/data", ""))
			Expect(resp.StatusCode).To(Equal(http.StatusNoContent))
			Expect(db.transactions).To(BeEmpty())
		})
	})
})
