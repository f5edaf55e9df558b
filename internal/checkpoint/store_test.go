package checkpoint_test

import (
	"context"
	"database/sql"
	"path/filepath"

	boshlog "github.com/cloudfoundry/bosh-utils/logger"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zstreet87/TopoModelX/internal/checkpoint"
	"github.com/zstreet87/TopoModelX/simplicial"
	"github.com/zstreet87/TopoModelX/tensor"
)

var _ = Describe("Store", func() {
	var (
		store  *checkpoint.Store
		ctx    context.Context
		dbPath string
	)

	newModel := func(seed uint64) *simplicial.SCCN {
		m, err := simplicial.NewSCCN(5, 1, 2, 3, simplicial.WithSeed(seed))
		Expect(err).ToNot(HaveOccurred())
		return m
	}

	BeforeEach(func() {
		ctx = context.Background()
		dbPath = filepath.Join(GinkgoT().TempDir(), "sccn.db")
		var err error
		store, err = checkpoint.Open(dbPath, boshlog.NewLogger(boshlog.LevelNone))
		Expect(err).ToNot(HaveOccurred())
	})

	AfterEach(func() {
		Expect(store.Close()).To(Succeed())
	})

	Describe("Save and Load", func() {
		It("restores every parameter into a fresh model", func() {
			saved := newModel(1)
			meta, err := store.Save(ctx, saved)
			Expect(err).ToNot(HaveOccurred())
			Expect(meta.ID).ToNot(BeEmpty())
			Expect(meta.FormatVersion).To(Equal(checkpoint.FormatVersion))
			Expect(meta.Layers).To(Equal(2))

			restored := newModel(2)
			_, err = store.Load(ctx, meta.ID, restored)
			Expect(err).ToNot(HaveOccurred())

			want, got := saved.Parameters(), restored.Parameters()
			Expect(got).To(HaveLen(len(want)))
			for i := range want {
				Expect(got[i].Name).To(Equal(want[i].Name))
				Expect(tensor.AllClose(got[i].Data, want[i].Data, 0, 0)).To(BeTrue(), want[i].Name)
			}
		})

		It("round-trips zeroed parameters", func() {
			m := newModel(3)
			Expect(m.ResetParameters()).To(Succeed())
			meta, err := store.Save(ctx, m)
			Expect(err).ToNot(HaveOccurred())

			other := newModel(4)
			_, err = store.Load(ctx, meta.ID, other)
			Expect(err).ToNot(HaveOccurred())
			for _, p := range other.Parameters() {
				Expect(p.Data.IsZero()).To(BeTrue(), p.Name)
			}
		})

		It("rejects a model with different hyperparameters", func() {
			meta, err := store.Save(ctx, newModel(1))
			Expect(err).ToNot(HaveOccurred())

			wider, err := simplicial.NewSCCN(6, 1, 2, 3)
			Expect(err).ToNot(HaveOccurred())
			_, err = store.Load(ctx, meta.ID, wider)
			Expect(err).To(MatchError(ContainSubstring("channels=5")))
		})

		It("leaves the model untouched when a stored shape disagrees", func() {
			meta, err := store.Save(ctx, newModel(1))
			Expect(err).ToNot(HaveOccurred())

			db, err := sql.Open("sqlite", dbPath)
			Expect(err).ToNot(HaveOccurred())
			defer db.Close()
			_, err = db.ExecContext(ctx,
				`UPDATE parameters SET shape = '3,1' WHERE checkpoint_id = ? AND name = 'readouts.rank_1.bias'`, meta.ID)
			Expect(err).ToNot(HaveOccurred())

			target := newModel(2)
			before := make([]*tensor.Tensor, 0)
			for _, p := range target.Parameters() {
				c, err := p.Data.Clone()
				Expect(err).ToNot(HaveOccurred())
				before = append(before, c)
			}

			_, err = store.Load(ctx, meta.ID, target)
			Expect(err).To(MatchError(ContainSubstring("readouts.rank_1.bias")))
			for i, p := range target.Parameters() {
				Expect(tensor.AllClose(p.Data, before[i], 0, 0)).To(BeTrue(), p.Name)
			}
		})

		It("returns ErrNotFound for unknown ids", func() {
			_, err := store.Load(ctx, "missing", newModel(1))
			Expect(err).To(MatchError(checkpoint.ErrNotFound))
		})
	})

	Describe("List, Latest and Delete", func() {
		It("orders checkpoints newest first", func() {
			_, err := store.Latest(ctx)
			Expect(err).To(MatchError(checkpoint.ErrNotFound))

			first, err := store.Save(ctx, newModel(1))
			Expect(err).ToNot(HaveOccurred())
			second, err := store.Save(ctx, newModel(2))
			Expect(err).ToNot(HaveOccurred())

			all, err := store.List(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(all).To(HaveLen(2))
			Expect(all[0].ID).To(Equal(second.ID))
			Expect(all[1].ID).To(Equal(first.ID))

			latest, err := store.Latest(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(latest.ID).To(Equal(second.ID))

			Expect(store.Delete(ctx, second.ID)).To(Succeed())
			latest, err = store.Latest(ctx)
			Expect(err).ToNot(HaveOccurred())
			Expect(latest.ID).To(Equal(first.ID))

			Expect(store.Delete(ctx, second.ID)).To(MatchError(checkpoint.ErrNotFound))
		})
	})
})
