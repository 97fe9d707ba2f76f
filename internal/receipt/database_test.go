package receipt

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/tax"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	newReceipt := func(id string) *Receipt {
		return &Receipt{
			ID:               id,
			OriginalFilename: "bon.jpg",
			StoredFilename:   id + "_bon.jpg",
			ContentType:      "image/jpeg",
			UploadedAt:       time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC),
			ProcessingStatus: StatusPending,
		}
	}

	Describe("SaveReceipt", func() {
		It("stores the receipt", func() {
			Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())

			saved, err := db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.StoredFilename).To(Equal("test-id_bon.jpg"))
			Expect(saved.UploadedAt).To(BeTemporally("==", time.Date(2025, 1, 15, 10, 0, 0, 0, time.UTC)))
		})
	})

	Describe("GetReceipt", func() {
		When("receipt does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetReceipt("nonexistent")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("UpdateReceipt", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())
		})

		It("saves the changes made by fn", func() {
			updated, err := db.UpdateReceipt("test-id", func(r *Receipt) error {
				r.ProcessingStatus = StatusProcessing
				return nil
			})
			Expect(err).NotTo(HaveOccurred())
			Expect(updated.ProcessingStatus).To(Equal(StatusProcessing))

			saved, _ := db.GetReceipt("test-id")
			Expect(saved.ProcessingStatus).To(Equal(StatusProcessing))
		})

		It("writes nothing when fn fails", func() {
			setupErr := errors.New("refused")
			_, err := db.UpdateReceipt("test-id", func(r *Receipt) error {
				r.ProcessingStatus = StatusFailed
				return setupErr
			})
			Expect(err).To(MatchError(setupErr))

			saved, _ := db.GetReceipt("test-id")
			Expect(saved.ProcessingStatus).To(Equal(StatusPending))
		})

		It("returns ErrNotFound for an unknown receipt", func() {
			_, err := db.UpdateReceipt("nonexistent", func(*Receipt) error { return nil })
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("CompleteReceipt", func() {
		var data *ExtractedData

		BeforeEach(func() {
			r := newReceipt("test-id")
			Expect(db.SaveReceipt(r)).To(Succeed())

			r.ProcessingStatus = StatusCompleted
			data = &ExtractedData{
				ReceiptID:       "test-id",
				VendorName:      "Albert Heijn",
				ExpenseCategory: tax.RepresentationSupermarket,
				TotalInclVAT:    decimal.RequireFromString("21.00"),
				VATAmountByRate: tax.VATBreakdown{Rate9: decimal.RequireFromString("1.73")},
			}
			Expect(db.CompleteReceipt(r, data)).To(Succeed())
		})

		It("stores the receipt status and the extracted data together", func() {
			saved, err := db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(saved.ProcessingStatus).To(Equal(StatusCompleted))

			got, err := db.GetExtractedData("test-id")
			Expect(err).NotTo(HaveOccurred())
			Expect(got.VendorName).To(Equal("Albert Heijn"))
			Expect(got.VATAmountByRate.Rate9.Equal(decimal.RequireFromString("1.73"))).To(BeTrue())
			Expect(got.TotalInclVAT.Equal(decimal.RequireFromString("21"))).To(BeTrue())
		})

		It("lists the extracted data", func() {
			records, err := db.ListExtractedData()
			Expect(err).NotTo(HaveOccurred())
			Expect(records).To(HaveLen(1))
		})
	})

	Describe("GetExtractedData", func() {
		It("returns ErrNotFound when nothing was extracted", func() {
			_, err := db.GetExtractedData("nonexistent")
			Expect(err).To(MatchError(ErrNotFound))
		})
	})

	Describe("ListReceipts", func() {
		When("receipts exist", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(newReceipt("id1"))).To(Succeed())
				Expect(db.SaveReceipt(newReceipt("id2"))).To(Succeed())
			})

			It("returns all receipts", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(HaveLen(2))
			})
		})

		When("no receipts exist", func() {
			It("returns an empty list", func() {
				receipts, err := db.ListReceipts()
				Expect(err).NotTo(HaveOccurred())
				Expect(receipts).To(BeEmpty())
			})
		})
	})

	Describe("tax rules", func() {
		It("keeps overrides per scope", func() {
			rule := tax.Rule{VATDeductiblePercentage: 50, IBDeductiblePercentage: 75}
			Expect(db.SaveTaxRule("2025", tax.TransportCosts, rule)).To(Succeed())

			rules, err := db.TaxRules("2025")
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(HaveKeyWithValue(tax.TransportCosts, rule))

			other, err := db.TaxRules(tax.DefaultScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(other).To(BeEmpty())
		})

		It("deletes an override", func() {
			Expect(db.SaveTaxRule(tax.DefaultScope, tax.TransportCosts, tax.Rule{})).To(Succeed())
			Expect(db.DeleteTaxRule(tax.DefaultScope, tax.TransportCosts)).To(Succeed())

			rules, err := db.TaxRules(tax.DefaultScope)
			Expect(err).NotTo(HaveOccurred())
			Expect(rules).To(BeEmpty())
		})

		It("ignores deletes in an unknown scope", func() {
			Expect(db.DeleteTaxRule("nope", tax.TransportCosts)).To(Succeed())
		})
	})

	Describe("persistence", func() {
		It("keeps data across reopen", func() {
			Expect(db.SaveReceipt(newReceipt("test-id"))).To(Succeed())
			Expect(db.Close()).To(Succeed())

			var err error
			db, err = NewBoltDB(dbPath)
			Expect(err).NotTo(HaveOccurred())

			_, err = db.GetReceipt("test-id")
			Expect(err).NotTo(HaveOccurred())
		})
	})
})
