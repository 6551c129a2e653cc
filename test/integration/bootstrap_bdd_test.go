//go:build integration

package integration

import (
	"context"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"

	"github.com/shellmon/shellmon/internal/config"
	"github.com/shellmon/shellmon/internal/domain"
	"github.com/shellmon/shellmon/internal/infra"
	"github.com/shellmon/shellmon/internal/supervisor"
	"github.com/shellmon/shellmon/internal/usecase"
)

// recordingSpawner records detached spawns instead of forking.
type recordingSpawner struct {
	argv [][]string
}

func (r *recordingSpawner) SpawnDetached(path string, argv []string) error {
	r.argv = append(r.argv, argv)
	return nil
}

// emptyFinder never finds a live process.
type emptyFinder struct{}

func (emptyFinder) FindWorker(domain.WorkerDescriptor) (int32, bool) { return 0, false }
func (emptyFinder) FindCommand(...string) (int32, bool)              { return 0, false }

// deadPM reports every pid as not running.
type deadPM struct{}

func (deadPM) IsRunning(int32) bool  { return false }
func (deadPM) Terminate(int32) error { return nil }

var _ = Describe("Bootstrap lifecycle", func() {
	var (
		tmpDir  string
		rcFile  string
		payload string
		cfg     config.Config
		blocks  domain.BlockManager
		spawner *recordingSpawner
		server  *httptest.Server
		fetches atomic.Int32
	)

	newBootstrap := func() *usecase.Bootstrap {
		sup := supervisor.New(emptyFinder{}, deadPM{}, spawner, zap.NewNop())
		installer := infra.NewInstaller(infra.NewHTTPFetcher(), nil, zap.NewNop())
		return usecase.NewBootstrap(
			cfg, "/usr/local/bin/shellmon",
			installer, blocks, sup, spawner, emptyFinder{}, deadPM{},
			zap.NewNop(),
		)
	}

	readRC := func() string {
		data, err := os.ReadFile(rcFile)
		Expect(err).NotTo(HaveOccurred())
		return string(data)
	}

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		rcFile = filepath.Join(tmpDir, ".bashrc")
		payload = filepath.Join(tmpDir, "worker.py")
		Expect(os.WriteFile(rcFile, []byte("# user rc\nexport EDITOR=vi\n"), 0644)).To(Succeed())

		fetches.Store(0)
		server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			fetches.Add(1)
			_, _ = w.Write([]byte("print('worker alive')\n"))
		}))

		cfg = config.Config{
			RCFile:      rcFile,
			PayloadPath: payload,
			Interpreter: "python",
			Autostart:   false,
			SourceURL:   server.URL,
			BlockTag:    config.DefaultBlockTag,
		}
		blocks = infra.NewRCFileManager()
		spawner = &recordingSpawner{}
	})

	AfterEach(func() {
		server.Close()
	})

	Describe("install", func() {
		It("downloads the payload, injects the block and spawns the watch daemon", func() {
			Expect(newBootstrap().Install(context.Background())).To(Succeed())

			By("committing the payload owner-only")
			info, err := os.Stat(payload)
			Expect(err).NotTo(HaveOccurred())
			Expect(info.Mode().Perm()).To(Equal(os.FileMode(0700)))

			By("injecting exactly one tagged region")
			content := readRC()
			begin := domain.MarkerBlock{Tag: cfg.BlockTag}.BeginMarker()
			Expect(strings.Count(content, begin)).To(Equal(1))
			Expect(content).To(ContainSubstring("# user rc"))

			By("spawning the watch daemon detached")
			Expect(spawner.argv).To(HaveLen(1))
			Expect(spawner.argv[0]).To(ContainElement("watch"))
		})

		It("is idempotent across repeated runs", func() {
			Expect(newBootstrap().Install(context.Background())).To(Succeed())
			first := readRC()
			firstFetches := fetches.Load()

			Expect(newBootstrap().Install(context.Background())).To(Succeed())

			Expect(readRC()).To(Equal(first))
			Expect(fetches.Load()).To(Equal(firstFetches + 1))

			begin := domain.MarkerBlock{Tag: cfg.BlockTag}.BeginMarker()
			Expect(strings.Count(readRC(), begin)).To(Equal(1))
		})

		It("skips the download when no source URL is configured", func() {
			cfg.SourceURL = ""
			Expect(newBootstrap().Install(context.Background())).To(Succeed())

			Expect(fetches.Load()).To(BeZero())
			_, err := os.Stat(payload)
			Expect(os.IsNotExist(err)).To(BeTrue())
		})
	})

	Describe("uninstall", func() {
		It("removes the tagged region and nothing else", func() {
			b := newBootstrap()
			Expect(b.Install(context.Background())).To(Succeed())
			Expect(b.Uninstall()).To(Succeed())

			content := readRC()
			Expect(content).NotTo(ContainSubstring(cfg.BlockTag))
			Expect(content).To(ContainSubstring("# user rc"))

			By("leaving the payload in place")
			_, err := os.Stat(payload)
			Expect(err).NotTo(HaveOccurred())
		})

		It("leaves a file with no tagged region byte-for-byte unchanged", func() {
			before := readRC()
			Expect(newBootstrap().Uninstall()).To(Succeed())
			Expect(readRC()).To(Equal(before))
		})
	})
})
