package readiness

import (
	"testing"

	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

func TestNoKeywordsIsAlwaysBlocker(t *testing.T) {
	category := domain.Category{
		Description: "салон красоты в центре",
		PricesJSON:  []byte(`{"стрижка": 1500}`),
		ImageCount:  4,
	}
	for _, pipeline := range []domain.PipelineType{domain.PipelineArticle, domain.PipelineSocial} {
		report := Evaluate(category, pipeline, 10)
		if !report.HasBlockers {
			t.Fatalf("без ключевых фраз генерация невозможна (%s)", pipeline)
		}
	}
}

func TestSocialExcludesPricesAndImages(t *testing.T) {
	category := domain.Category{
		Keywords:    []string{"маникюр спб"},
		Description: "студия маникюра",
	}
	report := Evaluate(category, domain.PipelineSocial, 100)
	for _, missing := range report.MissingItems {
		if missing == ItemPrices || missing == ItemImages {
			t.Fatalf("социальный конвейер не должен требовать %s", missing)
		}
	}
	if report.HasBlockers {
		t.Fatal("ключевые фразы заполнены, блокеров быть не должно")
	}
}

func TestProgressiveDisclosure(t *testing.T) {
	category := domain.Category{Keywords: []string{"окна пвх"}}

	early := Evaluate(category, domain.PipelineArticle, 0)
	for _, item := range early.Items {
		if item.Name == ItemPrices || item.Name == ItemImages {
			t.Fatal("новичку разделы цен и изображений не показываются")
		}
	}

	late := Evaluate(category, domain.PipelineArticle, disclosureThreshold)
	var found int
	for _, item := range late.Items {
		if item.Name == ItemPrices || item.Name == ItemImages {
			found++
		}
	}
	if found != 2 {
		t.Fatalf("после %d публикаций ожидали оба раздела, нашли %d", disclosureThreshold, found)
	}
}

func TestEstimateCost(t *testing.T) {
	cases := []struct {
		name            string
		pipeline        domain.PipelineType
		images          int
		needDescription bool
		keywords        int
		want            int64
	}{
		{"статья с 4 картинками и описанием", domain.PipelineArticle, 4, true, 10, 320},
		{"статья без допов", domain.PipelineArticle, 0, false, 10, 100},
		{"социальный пост игнорирует картинки", domain.PipelineSocial, 4, false, 10, 50},
		{"первая сотня фраз входит в базу", domain.PipelineArticle, 0, false, 100, 100},
		{"пакеты ключевых фраз", domain.PipelineArticle, 0, false, 250, 140},
	}
	for _, tc := range cases {
		got := EstimateCost(tc.pipeline, tc.images, tc.needDescription, tc.keywords)
		if got != tc.want {
			t.Fatalf("%s: ожидали %d, получили %d", tc.name, tc.want, got)
		}
	}
}

func TestEvaluateDeterministic(t *testing.T) {
	category := domain.Category{Keywords: []string{"a"}, ImageCount: 2}
	first := Evaluate(category, domain.PipelineArticle, 5)
	second := Evaluate(category, domain.PipelineArticle, 5)
	if first.EstimatedCost != second.EstimatedCost || first.HasBlockers != second.HasBlockers {
		t.Fatal("оценка должна быть детерминированной")
	}
}
