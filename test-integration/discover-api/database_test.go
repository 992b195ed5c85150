package integration

import (
	"net/http"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/site-discovery-server/test-integration/discover-api/helpers"
)

var _ = Describe("Database storage", Ordered, Label("database"), func() {
	var (
		pg      *helpers.PostgresInstance
		forum   *helpers.MockForum
		tempDir string
		servers []*helpers.ServerTestHelper
	)

	BeforeAll(func() {
		var err error
		pg, err = helpers.StartPostgres(ctx)
		Expect(err).NotTo(HaveOccurred())

		forum = helpers.NewMockForumServerBuilder("sites").
			WithPage(helpers.Topics(1, 24, "locale-en")...).
			WithPage(helpers.Topics(25, 10, "locale-fr")...).
			Build()

		tempDir = createTempDir("discover-api-db-test-")
	})

	AfterAll(func() {
		for _, s := range servers {
			Expect(s.StopServer()).To(Succeed())
		}
		if forum != nil {
			forum.Close()
		}
		cleanupTempDir(tempDir)
		if pg != nil {
			Expect(pg.Terminate(ctx)).To(Succeed())
		}
	})

	It("should bootstrap once across instances sharing a database", func() {
		configPath := helpers.WriteConfigYAML(tempDir, forum.URL, "sites", helpers.ConfigOptions{
			AdminSecret: adminSecret,
			Database:    pg,
		})

		for range 2 {
			s := helpers.NewServerTestHelper(ctx, configPath, helpers.FreePort())
			Expect(s.StartServer()).To(Succeed())
			servers = append(servers, s)
		}
		for _, s := range servers {
			s.WaitForServerReady(30 * time.Second)
		}

		for _, s := range servers {
			Eventually(func() int64 {
				return s.ListSites(nil).Meta.Total
			}, 30*time.Second, 100*time.Millisecond).Should(Equal(int64(34)))
		}

		// the sync lock and the page cache live in the shared database
		Consistently(func() int {
			return forum.PageHits(0)
		}, 500*time.Millisecond, 100*time.Millisecond).Should(Equal(1))
	})

	It("should serve the same catalog and readiness from every instance", func() {
		for _, s := range servers {
			resp, err := s.GetReadiness()
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			list := s.ListSites(map[string][]string{"locale": {"fr"}})
			Expect(list.Meta.Total).To(Equal(int64(10)))
		}
	})

	It("should persist an admin sync from one instance for all of them", func() {
		pages := [][]helpers.ForumTopic{
			helpers.Topics(1, 24, "locale-en"),
			helpers.Topics(25, 11, "locale-fr"),
		}
		forum.SetPages(pages...)

		resp, err := servers[0].TriggerSync(servers[0].AdminToken())
		Expect(err).NotTo(HaveOccurred())
		resp.Body.Close()
		Expect(resp.StatusCode).To(Equal(http.StatusOK))

		Eventually(func() int64 {
			return servers[1].ListSites(nil).Meta.Total
		}, 30*time.Second, 100*time.Millisecond).Should(Equal(int64(35)))
	})
})
