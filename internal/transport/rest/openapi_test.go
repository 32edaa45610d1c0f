package rest_test

import (
	"context"
	"net/http"
	"strings"

	"github.com/getkin/kin-openapi/openapi3"
	"github.com/go-chi/chi"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("OpenAPI document", func() {
	var doc *openapi3.T

	BeforeEach(func() {
		var err error
		doc, err = openapi3.NewLoader().LoadFromFile("../../../api/openapi.yml")
		Expect(err).NotTo(HaveOccurred())
	})

	It("is valid", func() {
		Expect(doc.Validate(context.Background())).To(Succeed())
	})

	It("documents every mounted API route", func() {
		router := newTestRouter(nil)

		err := chi.Walk(router, func(method, route string, _ http.Handler, _ ...func(http.Handler) http.Handler) error {
			if !strings.HasPrefix(route, "/api/") {
				return nil
			}
			path := strings.TrimPrefix(route, "/api")
			item := doc.Paths.Value(path)
			Expect(item).NotTo(BeNil(), "undocumented path %s", route)
			Expect(item.GetOperation(method)).NotTo(BeNil(), "undocumented operation %s %s", method, route)
			return nil
		})
		Expect(err).NotTo(HaveOccurred())
	})
})
