package extraction

import (
	"context"
	"errors"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/btw-tracker/internal/tax"
)

var _ = Describe("Categorizer", func() {
	var (
		gen         *mockGenerator
		categorizer *Categorizer
		record      *Structured
		category    tax.Category
	)

	BeforeEach(func() {
		gen = &mockGenerator{}
		categorizer = NewCategorizer(gen)
		record = &Structured{VendorName: "Albert Heijn", TotalAmount: decimal.RequireFromString("21"), Currency: "EUR"}
	})

	JustBeforeEach(func() {
		category = categorizer.Categorize(context.Background(), record)
	})

	When("the model answers with a listed label", func() {
		BeforeEach(func() {
			gen.response = "**Representatiekosten - Type 2 (Horeca)**"
		})

		It("uses the model's label", func() {
			Expect(category).To(Equal(tax.RepresentationHospitality))
		})

		It("lists every category in the prompt", func() {
			for _, c := range tax.Categories() {
				Expect(gen.prompts[0]).To(ContainSubstring(string(c)))
			}
		})
	})

	When("the model numbers its answer", func() {
		BeforeEach(func() {
			gen.response = "6. Vervoerskosten"
		})

		It("strips the number", func() {
			Expect(category).To(Equal(tax.TransportCosts))
		})
	})

	When("the model answers with free text", func() {
		BeforeEach(func() {
			gen.response = "Groceries"
		})

		It("falls back to vendor keywords", func() {
			Expect(category).To(Equal(tax.RepresentationSupermarket))
		})
	})

	When("the model call fails", func() {
		BeforeEach(func() {
			gen.err = errors.New("unavailable")
			record.VendorName = "Shell Station A12"
		})

		It("falls back to vendor keywords", func() {
			Expect(category).To(Equal(tax.TransportCosts))
		})
	})

	When("no model is configured", func() {
		BeforeEach(func() {
			categorizer = NewCategorizer(nil)
			record.VendorName = "Unknown Shop"
		})

		It("uses the default category", func() {
			Expect(category).To(Equal(tax.DefaultCategory))
		})
	})
})

var _ = Describe("CategorizeByKeyword", func() {
	DescribeTable("matches whole words only",
		func(vendor string, want tax.Category) {
			Expect(CategorizeByKeyword(vendor)).To(Equal(want))
		},
		Entry("supermarket", "ALBERT HEIJN 1234", tax.RepresentationSupermarket),
		Entry("electronics", "Coolblue B.V.", tax.ProfessionalCosts),
		Entry("web shop", "bol.com", tax.ProfessionalCosts),
		Entry("restaurant", "Restaurant De Kas", tax.RepresentationHospitality),
		Entry("hotel", "Hotel Okura Amsterdam", tax.TravelAndAccommodation),
		Entry("hotel bar", "Hotel Bar Central", tax.TravelAndAccommodation),
		Entry("public transport", "NS Reizigers", tax.TransportCosts),
		Entry("course", "Udemy", tax.BusinessEducation),
		Entry("office supplies", "Staples Nederland", tax.OfficeCosts),
		Entry("substring is not a word", "Barbershop Lidlstraat", tax.DefaultCategory),
		Entry("empty vendor", "", tax.DefaultCategory),
	)
})
