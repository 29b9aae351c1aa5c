package parsers

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const priceDoc = `<?xml version="1.0" encoding="utf-8"?>
<root>
  <ChainId>7290058108879</ChainId>
  <SubChainId>1</SubChainId>
  <StoreId>337</StoreId>
  <Items Count="2">
    <Item>
      <ItemCode>7290000000011</ItemCode>
      <ItemNm>Milk 3%</ItemNm>
      <ManufacturerName>Tnuva</ManufacturerName>
      <ItemPrice>6.90</ItemPrice>
      <UnitOfMeasurePrice>0.69</UnitOfMeasurePrice>
      <Quantity>1000.00</Quantity>
      <UnitOfMeasure>ml</UnitOfMeasure>
      <bIsWeighted>0</bIsWeighted>
      <QtyInPackage>1</QtyInPackage>
      <AllowDiscount>1</AllowDiscount>
      <ItemStatus>1</ItemStatus>
      <PriceUpdateDate>2025-05-11 08:00</PriceUpdateDate>
    </Item>
    <Item>
      <ItemCode>7290000000028</ItemCode>
      <ItemNm>Cheese</ItemNm>
      <ItemPrice>24.50</ItemPrice>
    </Item>
  </Items>
</root>`

func TestParseProducts(t *testing.T) {
	products, err := ParseProducts(priceDoc)
	require.NoError(t, err)
	require.Len(t, products, 2)

	milk := products[0]
	assert.Equal(t, "7290058108879", milk.FeedChainID)
	assert.Equal(t, "337", milk.FeedStoreID)
	assert.Equal(t, "7290000000011", milk.ItemCode)
	assert.Equal(t, "Milk 3%", milk.ItemName)
	assert.Equal(t, "Tnuva", milk.ManufacturerName)
	assert.Equal(t, "6.90", milk.Price.StringFixed(2))
	assert.Equal(t, "0.69", milk.UnitOfMeasurePrice.StringFixed(2))
	assert.Equal(t, "1000.00", milk.Quantity.StringFixed(2))
	assert.Equal(t, "ml", milk.UnitOfMeasure)
	assert.False(t, milk.IsWeighted)
	assert.True(t, milk.AllowDiscount)
	assert.Equal(t, 1, milk.ItemStatus)
	assert.Equal(t, "2025-05-11 08:00", milk.PriceUpdateDate)
}

func TestParseProductsDefaults(t *testing.T) {
	products, err := ParseProducts(priceDoc)
	require.NoError(t, err)

	cheese := products[1]
	assert.Equal(t, "24.50", cheese.Price.StringFixed(2))
	assert.Equal(t, "24.50", cheese.UnitOfMeasurePrice.StringFixed(2))
	assert.Equal(t, "1.00", cheese.Quantity.StringFixed(2))
	assert.Equal(t, "1.00", cheese.QtyInPackage.StringFixed(2))
	assert.Equal(t, "unit", cheese.UnitOfMeasure)
	assert.False(t, cheese.IsWeighted)
	assert.True(t, cheese.AllowDiscount)
	assert.Equal(t, 1, cheese.ItemStatus)
}

func TestParseProductsMissingOrInvalidNumbers(t *testing.T) {
	doc := `<root><Items>
	  <Item><ItemCode>1</ItemCode><ItemNm>no price</ItemNm></Item>
	  <Item><ItemCode>2</ItemCode><ItemPrice>abc</ItemPrice><Quantity></Quantity><ItemStatus>x</ItemStatus></Item>
	</Items></root>`

	products, err := ParseProducts(doc)

	require.NoError(t, err)
	require.Len(t, products, 2)
	assert.Equal(t, "0.00", products[0].Price.StringFixed(2))
	assert.Equal(t, "0.00", products[1].Price.StringFixed(2))
	assert.Equal(t, "1.00", products[1].Quantity.StringFixed(2))
	assert.Equal(t, 1, products[1].ItemStatus)
}

func TestParseIntOutOfRange(t *testing.T) {
	assert.Equal(t, 7, parseInt("1e30", 7))
	assert.Equal(t, 7, parseInt("-1e30", 7))
	assert.Equal(t, 7, parseInt("99999999999999999999", 7))
	assert.Equal(t, 7, parseInt("2147483648", 7))
	assert.Equal(t, 2147483647, parseInt("2147483647", 7))
	assert.Equal(t, 1, parseInt("1.9", 0))
	assert.Equal(t, 12, parseInt("1.2e1", 0))

	doc := `<root><Items>
	  <Item><ItemCode>1</ItemCode><ItemPrice>1</ItemPrice><ItemStatus>1e30</ItemStatus><AllowDiscount>4294967296</AllowDiscount></Item>
	</Items></root>`
	products, err := ParseProducts(doc)
	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, 1, products[0].ItemStatus)
	assert.True(t, products[0].AllowDiscount)
}

func TestParseProductsSchemaVariants(t *testing.T) {
	doc := `<Root><Envelope><ChainID>100</ChainID><StoreID>7</StoreID>
	  <Header><Details>
	    <Line><ItemCode>9</ItemCode><ItemName>Bread</ItemName><ItemPrice>8</ItemPrice><blsWeighted>1</blsWeighted></Line>
	  </Details></Header>
	</Envelope></Root>`

	products, err := ParseProducts(doc)

	require.NoError(t, err)
	require.Len(t, products, 1)
	assert.Equal(t, "100", products[0].FeedChainID)
	assert.Equal(t, "7", products[0].FeedStoreID)
	assert.Equal(t, "Bread", products[0].ItemName)
	assert.Equal(t, "8.00", products[0].Price.StringFixed(2))
	assert.True(t, products[0].IsWeighted)
}

func TestParseProductsEmptyAndBOM(t *testing.T) {
	products, err := ParseProducts("\uFEFF<root><Items Count=\"0\"/></root>")

	require.NoError(t, err)
	assert.NotNil(t, products)
	assert.Empty(t, products)
}

func TestParseIsDeterministic(t *testing.T) {
	first, err := ParseProducts(priceDoc)
	require.NoError(t, err)
	second, err := ParseProducts(priceDoc)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestParseMalformed(t *testing.T) {
	for _, doc := range []string{"", "not xml at all", "<root><Items><Item>", "<root></Items>"} {
		_, err := ParseProducts(doc)
		assert.ErrorIs(t, err, ErrMalformedFeed, doc)

		_, err = ParsePromotions(doc)
		assert.ErrorIs(t, err, ErrMalformedFeed, doc)
	}
}

const promoDoc = `<?xml version="1.0" encoding="utf-8"?>
<Root>
  <ChainId>7290058108879</ChainId>
  <StoreId>337</StoreId>
  <Promotions Count="2">
    <Promotion>
      <PromotionId>1001</PromotionId>
      <PromotionDescription>2 for 10</PromotionDescription>
      <PromotionStartDate>2025-05-01</PromotionStartDate>
      <PromotionEndDate>2025-05-31</PromotionEndDate>
      <DiscountedPrice>10</DiscountedPrice>
      <DiscountedPricePerMida>5</DiscountedPricePerMida>
      <MinQty>2</MinQty>
      <MinPurchaseAmnt>0</MinPurchaseAmnt>
      <AllowMultipleDiscounts>1</AllowMultipleDiscounts>
      <RewardType>1</RewardType>
      <PromotionItems Count="2">
        <Item><ItemCode>7290000000011</ItemCode><IsGiftItem>0</IsGiftItem><ItemType>1</ItemType></Item>
        <Item><ItemCode>7290000000028</ItemCode><IsGiftItem>1</IsGiftItem></Item>
      </PromotionItems>
    </Promotion>
    <Promotion>
      <PromotionId>1002</PromotionId>
      <ItemCode>7290000000035</ItemCode>
      <DiscountRate>15</DiscountRate>
    </Promotion>
  </Promotions>
</Root>`

func TestParsePromotions(t *testing.T) {
	promos, err := ParsePromotions(promoDoc)
	require.NoError(t, err)
	require.Len(t, promos, 2)

	p := promos[0]
	assert.Equal(t, "337", p.FeedStoreID)
	assert.Equal(t, "1001", p.PromotionID)
	assert.Equal(t, "2 for 10", p.Description)
	assert.Equal(t, "2025-05-01", p.StartDate)
	assert.Equal(t, "2025-05-31", p.EndDate)
	assert.Equal(t, "10.00", p.DiscountedPrice.StringFixed(2))
	assert.Equal(t, "5.00", p.DiscountedPricePerUnit.StringFixed(2))
	assert.Equal(t, "2.00", p.MinQuantity.StringFixed(2))
	assert.True(t, p.AllowMultipleDiscounts)
	assert.Equal(t, 1, p.RewardType)

	require.Len(t, p.Items, 2)
	assert.Equal(t, "7290000000011", p.Items[0].ItemCode)
	assert.False(t, p.Items[0].IsGiftItem)
	assert.Equal(t, 1, p.Items[0].ItemType)
	assert.True(t, p.Items[1].IsGiftItem)
	assert.Equal(t, 1, p.Items[1].ItemType)
}

func TestParsePromotionWithInlineItemCode(t *testing.T) {
	promos, err := ParsePromotions(promoDoc)
	require.NoError(t, err)

	p := promos[1]
	assert.Equal(t, "1002", p.PromotionID)
	assert.Equal(t, "15.00", p.DiscountRate.StringFixed(2))
	require.Len(t, p.Items, 1)
	assert.Equal(t, "7290000000035", p.Items[0].ItemCode)
}

func TestParsePromotionsEmpty(t *testing.T) {
	promos, err := ParsePromotions(`<Root><Promotions Count="0"></Promotions></Root>`)

	require.NoError(t, err)
	assert.NotNil(t, promos)
	assert.Empty(t, promos)
}
