package models

// TeacherSession is one scheduled class or lab as returned by the session source.
// Rows from the classes and labs collections are merged into this shape.
type TeacherSession struct {
	ID          string      `db:"id" json:"id"`
	TeacherName string      `db:"teacher_name" json:"teacher_name"`
	Day         string      `db:"day" json:"day"`
	TimeSlot    string      `db:"time_slot" json:"time_slot"`
	Room        string      `db:"room" json:"room"`
	Code        string      `db:"code" json:"code"`
	Name        string      `db:"name" json:"name"`
	Kind        SessionKind `db:"kind" json:"kind"`
}
