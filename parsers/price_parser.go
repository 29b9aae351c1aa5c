package parsers

import (
	"github.com/shopspring/decimal"

	"pricefeed/model"
)

const defaultUnitOfMeasure = "unit"

var (
	priceContainers = nameSet("items", "products", "details")
	priceRecords    = nameSet("item", "product", "line")
)

// ParseProducts reads a PriceFull document. Items are collected from Item
// (or Product / Line) elements under an Items-like container; blank or
// non-numeric numbers fall back to defaults instead of failing the file.
func ParseProducts(text string) ([]model.Product, error) {
	products := make([]model.Product, 0)
	err := scan(text, priceContainers, priceRecords, func(h header, n node) {
		products = append(products, productFromFields(h, n.fields()))
	})
	if err != nil {
		return nil, err
	}
	log.Debugf("parsed %d products", len(products))
	return products, nil
}

func productFromFields(h header, f map[string]string) model.Product {
	price := parseDecimal(value(f, "itemprice", "price"), decimal.Zero)
	return model.Product{
		FeedChainID:                 h.ChainID,
		FeedStoreID:                 h.StoreID,
		ItemCode:                    value(f, "itemcode", "itemid"),
		ItemName:                    value(f, "itemnm", "itemname"),
		ManufacturerName:            value(f, "manufacturername", "manufacturename"),
		ManufacturerItemDescription: value(f, "manufactureritemdescription"),
		Price:                       price,
		UnitOfMeasurePrice:          parseDecimal(value(f, "unitofmeasureprice"), price),
		UnitQty:                     value(f, "unitqty"),
		Quantity:                    parseDecimal(value(f, "quantity"), decimal.NewFromInt(1)),
		UnitOfMeasure:               textOr(value(f, "unitofmeasure", "unitmeasure"), defaultUnitOfMeasure),
		IsWeighted:                  parseBool(value(f, "bisweighted", "blsweighted", "isweighted"), false),
		QtyInPackage:                parseDecimal(value(f, "qtyinpackage"), decimal.NewFromInt(1)),
		AllowDiscount:               parseBool(value(f, "allowdiscount"), true),
		ItemStatus:                  parseInt(value(f, "itemstatus"), model.ItemStatusActive),
		ManufactureCountry:          value(f, "manufacturecountry"),
		PriceUpdateDate:             value(f, "priceupdatedate", "priceupdatetime"),
	}
}
