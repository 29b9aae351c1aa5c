package parsers

import (
	"github.com/op/go-logging"
	"github.com/shopspring/decimal"

	"pricefeed/model"
)

var log = logging.MustGetLogger("parsers")

const defaultPromotionItemType = 1

var (
	promoContainers = nameSet("promotions", "sales")
	promoRecords    = nameSet("promotion", "sale")
)

// ParsePromotions reads a PromoFull document. Each promotion may carry its
// items under PromotionItems/Item; a promotion that names a single ItemCode
// directly gets that one item.
func ParsePromotions(text string) ([]model.Promotion, error) {
	promotions := make([]model.Promotion, 0)
	err := scan(text, promoContainers, promoRecords, func(h header, n node) {
		promotions = append(promotions, promotionFromNode(h, n))
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("parsed %d promotions", len(promotions))
	return promotions, nil
}

func promotionFromNode(h header, n node) model.Promotion {
	f := n.fields()
	p := model.Promotion{
		FeedChainID:            h.ChainID,
		FeedStoreID:            h.StoreID,
		PromotionID:            value(f, "promotionid", "promotionnumber"),
		Description:            value(f, "promotiondescription", "description"),
		UpdateDate:             value(f, "promotionupdatedate", "promotionupdatetime"),
		StartDate:              value(f, "promotionstartdate"),
		StartHour:              value(f, "promotionstarthour"),
		EndDate:                value(f, "promotionenddate"),
		EndHour:                value(f, "promotionendhour"),
		DiscountedPrice:        parseDecimal(value(f, "discountedprice"), decimal.Zero),
		DiscountedPricePerUnit: parseDecimal(value(f, "discountedpricepermida", "discountedpriceperunit"), decimal.Zero),
		DiscountRate:           parseDecimal(value(f, "discountrate"), decimal.Zero),
		MinQuantity:            parseDecimal(value(f, "minqty", "minquantity"), decimal.Zero),
		MaxQuantity:            parseDecimal(value(f, "maxqty", "maxquantity"), decimal.Zero),
		MinPurchaseAmount:      parseDecimal(value(f, "minpurchaseamnt", "minpurchaseamount"), decimal.Zero),
		AllowMultipleDiscounts: parseBool(value(f, "allowmultiplediscounts"), false),
		RewardType:             parseInt(value(f, "rewardtype"), 0),
		DiscountType:           parseInt(value(f, "discounttype"), 0),
		Remarks:                value(f, "remarks"),
		Items:                  make([]model.PromotionItem, 0),
	}

	if items, ok := n.child("promotionitems", "items"); ok {
		for _, c := range items.Nodes {
			if c.name() != "item" {
				continue
			}
			p.Items = append(p.Items, promotionItemFromFields(c.fields()))
		}
	} else if code := value(f, "itemcode"); code != "" {
		p.Items = append(p.Items, promotionItemFromFields(f))
	}
	return p
}

func promotionItemFromFields(f map[string]string) model.PromotionItem {
	return model.PromotionItem{
		ItemCode:   value(f, "itemcode"),
		IsGiftItem: parseBool(value(f, "isgiftitem"), false),
		ItemType:   parseInt(value(f, "itemtype"), defaultPromotionItemType),
	}
}
