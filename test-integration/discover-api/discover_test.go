package integration

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/stacklok/site-discovery-server/test-integration/discover-api/helpers"
)

const adminSecret = "integration-admin-secret"

var _ = Describe("Discover API", Label("api"), func() {
	var (
		tempDir      string
		forum        *helpers.MockForum
		serverHelper *helpers.ServerTestHelper
	)

	startServer := func(opts helpers.ConfigOptions) {
		configPath := helpers.WriteConfigYAML(tempDir, forum.URL, "sites", opts)
		serverHelper = helpers.NewServerTestHelper(ctx, configPath, helpers.FreePort())
		Expect(serverHelper.StartServer()).To(Succeed())
		serverHelper.WaitForServerReady(10 * time.Second)
	}

	waitForTotal := func(total int64) {
		Eventually(func() int64 {
			return serverHelper.ListSites(nil).Meta.Total
		}, 10*time.Second, 50*time.Millisecond).Should(Equal(total))
	}

	BeforeEach(func() {
		tempDir = createTempDir("discover-api-test-")
	})

	AfterEach(func() {
		if serverHelper != nil {
			Expect(serverHelper.StopServer()).To(Succeed())
			serverHelper = nil
		}
		if forum != nil {
			forum.Close()
			forum = nil
		}
		cleanupTempDir(tempDir)
	})

	Context("Bootstrap of an empty catalog", func() {
		BeforeEach(func() {
			secondPage := helpers.Topics(25, 5, "locale-de", "news")
			secondPage = append(secondPage, helpers.ForumTopic{
				ID:           100,
				Title:        "Gardening Club",
				FeaturedLink: "https://garden.example.com",
				Excerpt:      "Plants and soil",
				Tags:         []string{"locale-de", "hobby"},
				PinnedAt:     "2024-03-01T10:00:00Z",
			})

			forum = helpers.NewMockForumServerBuilder("sites").
				WithPage(append(helpers.Topics(1, 24, "locale-en", "hobby"), helpers.ForumTopic{Title: "No id"})...).
				WithPage(secondPage...).
				Build()

			startServer(helpers.ConfigOptions{AdminSecret: adminSecret})
			waitForTotal(30)
		})

		It("should crawl every page and skip records without an id", func() {
			list := serverHelper.ListSites(nil)
			Expect(list.Sites).To(HaveLen(24))
			Expect(list.Meta.Page).To(Equal(0))
			Expect(list.Meta.PerPage).To(Equal(24))
			Expect(list.Meta.TotalPages).To(Equal(int64(2)))

			Expect(forum.PageHits(0)).To(Equal(1))
			Expect(forum.PageHits(1)).To(Equal(1))
			Expect(forum.PageHits(2)).To(Equal(1), "the empty page ends the crawl")
		})

		It("should serve the second result page", func() {
			list := serverHelper.ListSites(url.Values{"page": {"1"}})
			Expect(list.Sites).To(HaveLen(6))
			Expect(list.Meta.Page).To(Equal(1))
		})

		It("should clamp a negative page to the first one", func() {
			list := serverHelper.ListSites(url.Values{"page": {"-3"}})
			Expect(list.Meta.Page).To(Equal(0))
			Expect(list.Sites).To(HaveLen(24))
		})

		It("should reject a non-numeric page", func() {
			resp, err := serverHelper.GetSites(url.Values{"page": {"two"}})
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
		})

		DescribeTable("filtering",
			func(query url.Values, want int64) {
				Expect(serverHelper.ListSites(query).Meta.Total).To(Equal(want))
			},
			Entry("by locale", url.Values{"locale": {"de"}}, int64(6)),
			Entry("by category", url.Values{"category": {"hobby"}}, int64(25)),
			Entry("by locale and category", url.Values{"locale": {"de"}, "category": {"hobby"}}, int64(1)),
			Entry("by name search", url.Values{"search": {"gardening"}}, int64(1)),
			Entry("featured only", url.Values{"featured": {"true"}}, int64(1)),
			Entry("unknown locale", url.Values{"locale": {"fr"}}, int64(0)),
		)

		It("should return a normalized site by id", func() {
			list := serverHelper.ListSites(url.Values{"search": {"gardening"}})
			Expect(list.Sites).To(HaveLen(1))

			resp, err := serverHelper.GetSite(fmt.Sprint(list.Sites[0].ID))
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var site helpers.Site
			Expect(json.NewDecoder(resp.Body).Decode(&site)).To(Succeed())
			Expect(site.ExternalTopicID).To(Equal(int64(100)))
			Expect(site.SiteName).To(Equal("Gardening Club"))
			Expect(site.SiteURL).To(Equal("https://garden.example.com"))
			Expect(site.Description).To(HaveValue(Equal("Plants and soil")))
			Expect(site.Locale).To(HaveValue(Equal("de")))
			Expect(site.Categories).To(Equal([]string{"hobby"}))
			Expect(site.Featured).To(BeTrue())
		})

		It("should return 404 for unknown or malformed ids", func() {
			for _, id := range []string{"999999", "abc"} {
				resp, err := serverHelper.GetSite(id)
				Expect(err).NotTo(HaveOccurred())
				resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusNotFound), id)
			}
		})

		It("should report ready", func() {
			resp, err := serverHelper.GetReadiness()
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
		})
	})

	Context("Admin triggered sync", func() {
		BeforeEach(func() {
			forum = helpers.NewMockForumServerBuilder("sites").
				WithPage(helpers.Topics(1, 3)...).
				Build()

			startServer(helpers.ConfigOptions{AdminSecret: adminSecret})
			waitForTotal(3)
		})

		It("should reject requests without an admin token", func() {
			resp, err := serverHelper.TriggerSync("")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusForbidden))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring("Bearer"))
		})

		It("should report the bootstrap run in the sync status", func() {
			Eventually(func(g Gomega) string {
				resp, err := serverHelper.GetSyncStatus(serverHelper.AdminToken())
				g.Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				g.Expect(resp.StatusCode).To(Equal(http.StatusOK))

				var body struct {
					Profiles map[string]struct {
						Phase  string `json:"phase"`
						Synced int    `json:"synced"`
					} `json:"profiles"`
				}
				g.Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				bootstrap := body.Profiles["bootstrap"]
				return fmt.Sprintf("%s/%d", bootstrap.Phase, bootstrap.Synced)
			}, 5*time.Second, 50*time.Millisecond).Should(Equal("Complete/3"))
		})

		It("should bypass the cache and pick up changed and new records", func() {
			renamed := helpers.Topics(1, 4)
			renamed[0].Title = "Renamed Site"
			forum.SetPages(renamed)

			resp, err := serverHelper.TriggerSync(serverHelper.AdminToken())
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			var body struct {
				Success bool `json:"success"`
			}
			Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
			Expect(body.Success).To(BeTrue())

			waitForTotal(4)
			Eventually(func() int64 {
				return serverHelper.ListSites(url.Values{"search": {"renamed"}}).Meta.Total
			}, 5*time.Second, 50*time.Millisecond).Should(Equal(int64(1)))
		})
	})

	Context("Rate limited listing", func() {
		It("should retry after 429 responses and complete the crawl", func() {
			forum = helpers.NewMockForumServerBuilder("sites").
				WithPage(helpers.Topics(1, 2)...).
				WithRateLimit(2, "").
				Build()

			startServer(helpers.ConfigOptions{MaxRetries: 3})
			waitForTotal(2)
			Expect(forum.Throttled()).To(Equal(int64(2)))
		})

		It("should give up once retries are exhausted", func() {
			forum = helpers.NewMockForumServerBuilder("sites").
				WithPage(helpers.Topics(1, 2)...).
				WithRateLimit(1000, "0").
				Build()

			startServer(helpers.ConfigOptions{MaxRetries: 1})

			// one initial attempt plus one retry, then the run ends
			Eventually(forum.Requests, 5*time.Second, 20*time.Millisecond).Should(Equal(int64(2)))
			Consistently(forum.Requests, 300*time.Millisecond, 50*time.Millisecond).Should(Equal(int64(2)))
			Expect(serverHelper.ListSites(nil).Meta.Total).To(BeZero())
		})
	})

	Context("Authenticated listing", func() {
		It("should send the configured API key", func() {
			forum = helpers.NewMockForumServerBuilder("sites").
				WithAPIKey("forum-key").
				WithPage(helpers.Topics(1, 2)...).
				Build()

			startServer(helpers.ConfigOptions{APIKey: "forum-key"})
			waitForTotal(2)
		})
	})

	Context("Feature disabled", func() {
		BeforeEach(func() {
			forum = helpers.NewMockForumServerBuilder("sites").
				WithPage(helpers.Topics(1, 2)...).
				Build()

			startServer(helpers.ConfigOptions{Disabled: true, AdminSecret: adminSecret})
		})

		It("should hide the discovery routes", func() {
			resp, err := serverHelper.GetIndex()
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			resp, err = serverHelper.GetSites(nil)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))

			resp, err = serverHelper.TriggerSync(serverHelper.AdminToken())
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusNotFound))
		})

		It("should keep health endpoints up and never contact the forum", func() {
			resp, err := serverHelper.GetHealth()
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))

			Consistently(forum.Requests, 300*time.Millisecond, 50*time.Millisecond).Should(BeZero())
		})
	})
})
