package vision_test

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/otic/vision"
	"github.com/otic/vision/store/memstore"
	"github.com/otic/vision/testutil"
)

// Example demonstrates registering a product and recognizing it.
func Example() {
	ctx := context.Background()

	o, err := vision.New(vision.DefaultConfig(), memstore.New())
	if err != nil {
		log.Fatal(err)
	}
	defer o.Close()

	reference, err := o.Extract(testutil.Solid(128, 128, testutil.Red))
	if err != nil {
		log.Fatal(err)
	}
	if _, err := o.RegisterToken(ctx, reference.Descriptor, vision.ProductMetadata{
		ProductID:   "sku-42",
		BrandName:   "Acme",
		ProductName: "Tomato Soup",
		Price:       249,
	}); err != nil {
		log.Fatal(err)
	}

	res, err := o.Recognize(ctx, testutil.Solid(96, 96, testutil.Red))
	if err != nil {
		log.Fatal(err)
	}

	best, _ := res.Best()
	fmt.Println(res.Verdict, best.Match.ProductName, best.Match.Price)
	// Output: Registered Tomato Soup 249
}

// Example_unregistered shows the verdict for a product that is not in the catalog.
func Example_unregistered() {
	o, _ := vision.New(vision.DefaultConfig(), memstore.New())
	defer o.Close()

	res, err := o.Recognize(context.Background(), testutil.Solid(64, 64, testutil.Blue))
	if err != nil {
		log.Fatal(err)
	}
	fmt.Println(res.Verdict, res.Confidence, len(res.Candidates))
	// Output: Unregistered 0 0
}

// Example_errors shows how infrastructure failures are reported.
func Example_errors() {
	o, _ := vision.New(vision.DefaultConfig(), memstore.New())
	defer o.Close()

	_, err := o.Recognize(context.Background(), testutil.Solid(0, 0, testutil.Red))
	fmt.Println(errors.Is(err, vision.ErrInvalidInput), vision.KindOf(err))
	// Output: true InvalidInput
}
