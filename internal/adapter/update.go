package adapter

// Update is delivered to order update subscribers. It is one of
// OrderUpdate, PositionUpdate or BalanceUpdate.
type Update interface {
	isUpdate()
}

type OrderUpdate struct {
	Order
}

type PositionUpdate struct {
	Position
}

type BalanceUpdate struct {
	Balance
}

func (OrderUpdate) isUpdate()    {}
func (PositionUpdate) isUpdate() {}
func (BalanceUpdate) isUpdate()  {}
