package readiness

import (
	"github.com/GVMBT/seo-master-sub004/internal/domain"
)

// Цены в токенах за единицу работы. Таблица фиксированная, чтобы число на
// шаге подтверждения совпадало с фактическим списанием.
const (
	PriceArticleBase  int64 = 100
	PriceSocialBase   int64 = 50
	PricePerImage     int64 = 40
	PriceDescription  int64 = 60
	PriceKeywordBatch int64 = 20
	keywordBatchSize        = 100
)

// disclosureThreshold — после скольких публикаций пользователю показываются
// разделы цен и изображений. UX-политика, а не инвариант.
const disclosureThreshold = 3

// Item описывает одно измерение готовности рубрики.
type Item struct {
	Name    string
	Filled  bool
	Blocker bool
}

// Имена измерений готовности.
const (
	ItemKeywords    = "keywords"
	ItemDescription = "description"
	ItemPrices      = "prices"
	ItemImages      = "images"
)

// Report — итог проверки готовности рубрики к генерации.
type Report struct {
	Items         []Item
	MissingItems  []string
	HasBlockers   bool
	EstimatedCost int64
}

// Evaluate вычисляет готовность рубрики и оценку стоимости. Функция чистая:
// никаких обращений к сети, детерминированный результат для снимка данных.
func Evaluate(category domain.Category, pipeline domain.PipelineType, publishedCount int) Report {
	hasKeywords := len(category.Keywords) > 0
	hasDescription := category.Description != ""
	hasPrices := len(category.PricesJSON) > 0
	hasImages := category.ImageCount > 0

	items := []Item{
		{Name: ItemKeywords, Filled: hasKeywords, Blocker: !hasKeywords},
		{Name: ItemDescription, Filled: hasDescription},
	}
	if pipeline == domain.PipelineArticle && publishedCount >= disclosureThreshold {
		items = append(items,
			Item{Name: ItemPrices, Filled: hasPrices},
			Item{Name: ItemImages, Filled: hasImages},
		)
	}

	report := Report{Items: items}
	for _, item := range items {
		if !item.Filled {
			report.MissingItems = append(report.MissingItems, item.Name)
		}
		if item.Blocker {
			report.HasBlockers = true
		}
	}
	report.EstimatedCost = EstimateCost(pipeline, category.ImageCount, !hasDescription, len(category.Keywords))
	return report
}

// EstimateCost считает стоимость генерации в токенах.
func EstimateCost(pipeline domain.PipelineType, imageCount int, needDescription bool, keywordCount int) int64 {
	var cost int64
	switch pipeline {
	case domain.PipelineSocial:
		cost = PriceSocialBase
		// Социальные посты не несут ни цен, ни изображений.
		imageCount = 0
	default:
		cost = PriceArticleBase
	}
	if imageCount > 0 {
		cost += int64(imageCount) * PricePerImage
	}
	if needDescription {
		cost += PriceDescription
	}
	if keywordCount > keywordBatchSize {
		batches := (keywordCount - 1) / keywordBatchSize
		cost += int64(batches) * PriceKeywordBatch
	}
	return cost
}
