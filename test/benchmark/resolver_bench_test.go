package benchmark

import (
	"context"
	"fmt"
	"testing"

	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/catalog"
	"github.com/Adithya-Monish-Kumar-K/product-atlas/internal/resolver"
)

var firstNames = []string{"Jane", "John", "Zoë", "Alex", "Priya", "Kenji", "Maria", "Omar"}
var lastNames = []string{"Doe", "Smith", "Ångström", "Kim", "Patel", "Sato", "Garcia", "Haddad"}

func guestName(i int) string {
	return fmt.Sprintf("%s %s %d", firstNames[i%len(firstNames)], lastNames[(i/len(firstNames))%len(lastNames)], i)
}

// resolverFixture builds n guests and a pool where every third guest only
// has an approximate file name and every seventh has none.
func resolverFixture(n int) ([]catalog.Entry, *resolver.Pool) {
	entries := make([]catalog.Entry, n)
	files := make([]string, 0, n)
	for i := range n {
		g := guestName(i)
		entries[i] = catalog.Entry{Guest: g}
		switch {
		case i%7 == 0:
		case i%3 == 0:
			files = append(files, fmt.Sprintf("%d-%s-%s-podcast.txt", i,
				lastNames[(i/len(firstNames))%len(lastNames)], firstNames[i%len(firstNames)]))
		default:
			files = append(files, fmt.Sprintf("%s-%s-%d.txt",
				firstNames[i%len(firstNames)], lastNames[(i/len(firstNames))%len(lastNames)], i))
		}
	}
	return entries, resolver.NewPool(files, ".txt")
}

func BenchmarkSimilarity(b *testing.B) {
	b.ReportAllocs()
	for b.Loop() {
		_ = resolver.Similarity("Jane Doe (Acme Corp)", "doe-jane-acme-corp")
	}
}

func BenchmarkResolverBuild(b *testing.B) {
	for _, size := range []int{100, 1000} {
		entries, pool := resolverFixture(size)
		for _, workers := range []int{1, 4} {
			b.Run(fmt.Sprintf("entries_%d/workers_%d", size, workers), func(b *testing.B) {
				opts := resolver.DefaultOptions()
				opts.Workers = workers
				b.ReportAllocs()
				for b.Loop() {
					if _, err := resolver.Build(context.Background(), entries, pool, opts); err != nil {
						b.Fatal(err)
					}
				}
			})
		}
	}
}
