package vectorsearch

import (
	"math"

	"github.com/kgmemory/kgmemory/internal/graphtypes"
)

// Cluster is one k-means cluster: its centroid and the members assigned to
// it.
type Cluster struct {
	Centroid []float32
	Members  []graphtypes.UUID
}

// KMeans runs Lloyd's algorithm over an explicit node list for up to
// maxIterations, or until no member's assignment changes, per spec.md §4.5
// ("k-means clustering... provided as offline operations over an explicit
// node list; not on the query path"). Centroid distance always uses cosine
// similarity regardless of the Searcher's configured metric, since
// clustering is a separate offline concern from query-time scoring.
func KMeans(ids []graphtypes.UUID, vectors [][]float32, k, maxIterations int) []Cluster {
	if k <= 0 || len(vectors) == 0 {
		return nil
	}
	if k > len(vectors) {
		k = len(vectors)
	}

	centroids := make([][]float32, k)
	for i := range centroids {
		centroids[i] = append([]float32(nil), vectors[i*len(vectors)/k]...)
	}

	assignment := make([]int, len(vectors))
	for iter := 0; iter < maxIterations; iter++ {
		changed := false
		for i, v := range vectors {
			best, bestSim := 0, -math.MaxFloat64
			for c, centroid := range centroids {
				sim := cosineSimilarity(v, centroid)
				if sim > bestSim {
					best, bestSim = c, sim
				}
			}
			if assignment[i] != best {
				assignment[i] = best
				changed = true
			}
		}

		sums := make([][]float64, k)
		counts := make([]int, k)
		for c := range sums {
			sums[c] = make([]float64, len(vectors[0]))
		}
		for i, v := range vectors {
			c := assignment[i]
			counts[c]++
			for d, f := range v {
				sums[c][d] += float64(f)
			}
		}
		for c := range centroids {
			if counts[c] == 0 {
				continue
			}
			newCentroid := make([]float32, len(sums[c]))
			for d := range newCentroid {
				newCentroid[d] = float32(sums[c][d] / float64(counts[c]))
			}
			centroids[c] = newCentroid
		}

		if !changed {
			break
		}
	}

	clusters := make([]Cluster, k)
	for c := range clusters {
		clusters[c].Centroid = centroids[c]
	}
	for i, c := range assignment {
		clusters[c].Members = append(clusters[c].Members, ids[i])
	}
	return clusters
}

// Outlier pairs a node with its distance from its cluster's centroid (or
// the dataset centroid, if clusters is nil).
type Outlier struct {
	EntityUUID graphtypes.UUID
	Distance   float64
}

// DetectOutliers returns members of vectors whose cosine distance from
// their assigned cluster's centroid exceeds threshold standard deviations
// above the mean distance within that cluster, per spec.md §4.5.
func DetectOutliers(ids []graphtypes.UUID, vectors [][]float32, clusters []Cluster, stddevThreshold float64) []Outlier {
	if len(vectors) == 0 {
		return nil
	}
	if len(clusters) == 0 {
		// One cluster holding every member, centred on the dataset centroid.
		clusters = KMeans(ids, vectors, 1, 1)
	}

	memberIndex := make(map[graphtypes.UUID]int, len(ids))
	for i, id := range ids {
		memberIndex[id] = i
	}

	var outliers []Outlier
	for _, cl := range clusters {
		if len(cl.Members) == 0 {
			continue
		}
		dists := make([]float64, 0, len(cl.Members))
		for _, id := range cl.Members {
			idx, ok := memberIndex[id]
			if !ok {
				continue
			}
			dists = append(dists, 1-cosineSimilarity(vectors[idx], cl.Centroid))
		}
		mean, stddev := meanStddev(dists)

		for i, id := range cl.Members {
			idx, ok := memberIndex[id]
			if !ok {
				continue
			}
			d := dists[i]
			if stddev > 0 && d > mean+stddevThreshold*stddev {
				outliers = append(outliers, Outlier{EntityUUID: id, Distance: d})
			}
		}
	}
	return outliers
}

func meanStddev(values []float64) (mean, stddev float64) {
	if len(values) == 0 {
		return 0, 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean = sum / float64(len(values))

	var variance float64
	for _, v := range values {
		d := v - mean
		variance += d * d
	}
	variance /= float64(len(values))
	return mean, math.Sqrt(variance)
}
