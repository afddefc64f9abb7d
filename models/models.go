package models

// Post is a normalized platform post with key fields kept in the store.
// Field names on the wire follow the documents written by earlier versions
// of the bot so that existing collections stay compatible.
type Post struct {
	ID             string  `json:"id" bson:"id"`
	CID            string  `json:"cid" bson:"cid"`
	AuthorDID      string  `json:"user_did" bson:"user_did"`
	AuthorName     string  `json:"user_name" bson:"user_name"`
	AuthorHandle   string  `json:"user_screen_name" bson:"user_screen_name"`
	AuthorLocation *string `json:"user_location" bson:"user_location"`
	Text           string  `json:"text" bson:"text"`
	CreatedAt      string  `json:"created_at" bson:"created_at"`
	Geo            *string `json:"geo" bson:"geo"`
	Favorited      bool    `json:"favorited" bson:"favorited"`
	Reposted       bool    `json:"retweeted" bson:"retweeted"`
	IsReply        bool    `json:"is_reply" bson:"is_reply"`
}

// PersonHeaders is the fixed column layout of the vaccination dataset.
var PersonHeaders = [...]string{
	"N", "place", "last_name", "first_name", "age", "dni",
	"date_1", "date_2", "date_3", "observation", "project",
}

// Person is one row of the imported dataset, keyed by its sequence number N.
type Person struct {
	N           string `json:"N" bson:"N"`
	Place       string `json:"place" bson:"place"`
	LastName    string `json:"last_name" bson:"last_name"`
	FirstName   string `json:"first_name" bson:"first_name"`
	Age         string `json:"age" bson:"age"`
	DNI         string `json:"dni" bson:"dni"`
	Date1       string `json:"date_1" bson:"date_1"`
	Date2       string `json:"date_2" bson:"date_2"`
	Date3       string `json:"date_3" bson:"date_3"`
	Observation string `json:"observation" bson:"observation"`
	Project     string `json:"project" bson:"project"`
}

// PersonFromRow maps a dataset row positionally onto a Person.
// The row must have exactly len(PersonHeaders) columns.
func PersonFromRow(row []string) Person {
	return Person{
		N:           row[0],
		Place:       row[1],
		LastName:    row[2],
		FirstName:   row[3],
		Age:         row[4],
		DNI:         row[5],
		Date1:       row[6],
		Date2:       row[7],
		Date3:       row[8],
		Observation: row[9],
		Project:     row[10],
	}
}

// Row returns the person as a dataset row in PersonHeaders order.
func (p Person) Row() []string {
	return []string{
		p.N, p.Place, p.LastName, p.FirstName, p.Age, p.DNI,
		p.Date1, p.Date2, p.Date3, p.Observation, p.Project,
	}
}
