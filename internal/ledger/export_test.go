package ledger

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"strings"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("Export", func() {
	var (
		db      *mockDB
		storage *mockStorage
		service *Service
	)

	BeforeEach(func() {
		db = newMockDB()
		storage = newMockStorage()
		clock := &mockTimeSource{now: time.Date(2025, 6, 15, 14, 30, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, newMockScanner(), storage, nil, nil, &mockIDGenerator{id: "x"}, clock)

		ctx := context.Background()
		storage.files["x_receipt.jpg"] = []byte("jpeg")
		_, err := service.SaveReceipt(ctx, Draft{ImageFile: "x_receipt.jpg", Store: "Corner Cafe", Amount: 2599, Date: "2025-06-14"})
		Expect(err).NotTo(HaveOccurred())
		_, err = service.AddIncome(ctx, 150000, "")
		Expect(err).NotTo(HaveOccurred())
		_, err = service.AddExpense(ctx, 1250, "Taxi", `ride, "downtown"`)
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("ExportJSON", func() {
		var doc map[string]any

		BeforeEach(func() {
			out, err := service.ExportJSON()
			Expect(err).NotTo(HaveOccurred())
			Expect(json.Unmarshal(out, &doc)).To(Succeed())
		})

		It("should include every section", func() {
			Expect(doc).To(HaveKey("goals"))
			Expect(doc).To(HaveKey("transactions"))
			Expect(doc).To(HaveKey("receipts"))
			Expect(doc["settings"]).To(HaveKeyWithValue("currency", "USD"))
		})

		It("should write amounts in dollars", func() {
			goals := doc["goals"].([]any)
			Expect(goals).To(HaveLen(1))
			Expect(goals[0]).To(HaveKeyWithValue("target", "22000"))

			receipts := doc["receipts"].([]any)
			Expect(receipts).To(HaveLen(1))
			Expect(receipts[0]).To(HaveKeyWithValue("amount", "25.99"))
			Expect(receipts[0]).To(HaveKeyWithValue("store", "Corner Cafe"))
			Expect(receipts[0]).To(HaveKeyWithValue("extracted_text", BeNil()))
		})

		It("should list transactions by ID with nulls for missing fields", func() {
			transactions := doc["transactions"].([]any)
			Expect(transactions).To(HaveLen(3))

			income := transactions[1].(map[string]any)
			Expect(income["type"]).To(Equal("income"))
			Expect(income["category"]).To(BeNil())
			Expect(income["receipt_id"]).To(BeNil())
			Expect(income["created_at"]).To(Equal("2025-06-15 14:30:00"))
		})
	})

	Describe("ExportCSV", func() {
		var records [][]string

		BeforeEach(func() {
			out, err := service.ExportCSV()
			Expect(err).NotTo(HaveOccurred())
			records, err = csv.NewReader(strings.NewReader(string(out))).ReadAll()
			Expect(err).NotTo(HaveOccurred())
		})

		It("should start with the header", func() {
			Expect(records[0]).To(Equal([]string{"id", "type", "amount", "category", "date", "note", "created_at"}))
		})

		It("should write one row per transaction, oldest first", func() {
			Expect(records).To(HaveLen(4))
			Expect(records[1][1]).To(Equal("expense"))
			Expect(records[1][2]).To(Equal("25.99"))
			Expect(records[1][3]).To(Equal(DefaultCategory))
			Expect(records[1][4]).To(Equal("2025-06-14"))
			Expect(records[2][1]).To(Equal("income"))
			Expect(records[2][2]).To(Equal("1500.00"))
		})

		It("should quote notes with commas and quotes", func() {
			Expect(records[3][5]).To(Equal(`ride, "downtown"`))
			Expect(records[3][6]).To(Equal("2025-06-15 14:30:00"))
		})

		When("there are no transactions", func() {
			BeforeEach(func() {
				Expect(db.ClearAll()).To(Succeed())
				out, err := service.ExportCSV()
				Expect(err).NotTo(HaveOccurred())
				records, err = csv.NewReader(strings.NewReader(string(out))).ReadAll()
				Expect(err).NotTo(HaveOccurred())
			})

			It("should write only the header", func() {
				Expect(records).To(HaveLen(1))
			})
		})
	})
})
